// Package logger provides a structured zerolog logger for proctorlink.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Init creates and returns a zerolog.Logger configured with the given log level.
// Supported levels: debug, info, warn, error. Defaults to info.
// Output is a human-readable console writer when stderr is a terminal,
// plain JSON lines otherwise so a host application can capture them.
func Init(level string) zerolog.Logger {
	var lvl zerolog.Level
	switch level {
	case "debug":
		lvl = zerolog.DebugLevel
	case "info":
		lvl = zerolog.InfoLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	default:
		lvl = zerolog.InfoLevel
	}

	log := zerolog.New(os.Stderr)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	return log.Level(lvl).With().Timestamp().Logger()
}
