// proctorlink is a telemetry bridge for an external proctoring
// inference process.
//
// Usage:
//
//	proctorlink monitor   spawn the inference process and stream events
//	proctorlink version   print version information
package main

import (
	"fmt"
	"os"

	"proctorlink/cmd/monitor"
)

const (
	defaultSystemPath = "/etc/proctorlink/config.toml"
	defaultLocalPath  = "config.toml"
	version           = "1.0.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := ""
	sessionID := ""

	// Parse --config / --session flags if present
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
			continue
		}
		if len(arg) > 9 && arg[:9] == "--config=" {
			configPath = arg[9:]
			args = append(args[:i], args[i+1:]...)
			i--
			continue
		}
		if arg == "--session" && i+1 < len(args) {
			sessionID = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
			continue
		}
		if len(arg) > 10 && arg[:10] == "--session=" {
			sessionID = arg[10:]
			args = append(args[:i], args[i+1:]...)
			i--
			continue
		}
	}

	// Auto-discover config if not specified
	if configPath == "" {
		if _, err := os.Stat(defaultLocalPath); err == nil {
			configPath = defaultLocalPath
		} else {
			configPath = defaultSystemPath
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	var err error

	switch subcommand {
	case "monitor":
		err = monitor.Run(configPath, sessionID)
	case "version":
		fmt.Printf("proctorlink v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`proctorlink v%s - telemetry bridge for an external proctoring inference process

Usage:
  proctorlink <command> [--config <path>] [--session <id>]

Commands:
  monitor  Spawn the inference process and stream frames/alerts as JSON lines
  version  Print version information
  help     Show this help message

Options:
  --config <path>  Path to config file (default: looks for ./config.toml, then %s)
  --session <id>   Session identifier passed to the inference process

Examples:
  proctorlink monitor                   # Start with default config
  proctorlink monitor --session exam-42 # Start a named session

`, version, defaultSystemPath)
}
