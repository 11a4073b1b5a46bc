// Package config provides TOML configuration loading for proctorlink.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration structure.
type Config struct {
	Paths        PathsConfig        `toml:"paths"`
	Monitor      MonitorConfig      `toml:"monitor"`
	Capabilities CapabilitiesConfig `toml:"capabilities"`
}

// PathsConfig holds the file locations shared with the inference process.
type PathsConfig struct {
	FrameFile        string `toml:"frame_file"`
	FlagFile         string `toml:"flag_file"`
	AlertFile        string `toml:"alert_file"`
	PythonBin        string `toml:"python_bin"`
	Script           string `toml:"script"`
	ParticipantImage string `toml:"participant_image"`
	JournalDB        string `toml:"journal_db"`
}

// MonitorConfig holds polling rates and supervisor settings.
type MonitorConfig struct {
	FPS               int    `toml:"fps"`
	AlertPollInterval string `toml:"alert_poll_interval"`
	TerminateTimeout  string `toml:"terminate_timeout"`
	RingLines         int    `toml:"ring_lines"`
	LogLevel          string `toml:"log_level"`
}

// CapabilitiesConfig is the system-level enable policy per detection
// capability. A policy entry set to false disables the capability even
// when a session requests it; true leaves the session's request as-is.
type CapabilitiesConfig struct {
	PhoneDetection bool `toml:"phone_detection"`
	FaceDetection  bool `toml:"face_detection"`
	FaceMatching   bool `toml:"face_matching"`
	EyeTracking    bool `toml:"eye_tracking"`
}

// ParseAlertPollInterval parses the alert poll interval string to a time.Duration.
func (m *MonitorConfig) ParseAlertPollInterval() (time.Duration, error) {
	if m.AlertPollInterval == "" {
		return 200 * time.Millisecond, nil
	}
	return time.ParseDuration(m.AlertPollInterval)
}

// ParseTerminateTimeout parses the termination grace period string to a time.Duration.
func (m *MonitorConfig) ParseTerminateTimeout() (time.Duration, error) {
	if m.TerminateTimeout == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(m.TerminateTimeout)
}

// Load reads and parses a TOML config file, applying defaults for unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.expandPaths()
	return cfg, nil
}

// Default returns a configuration with all defaults applied, for hosts
// that embed proctorlink without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.expandPaths()
	return cfg
}

func (cfg *Config) expandPaths() {
	cfg.Paths.FrameFile = ExpandPath(cfg.Paths.FrameFile)
	cfg.Paths.FlagFile = ExpandPath(cfg.Paths.FlagFile)
	cfg.Paths.AlertFile = ExpandPath(cfg.Paths.AlertFile)
	cfg.Paths.Script = ExpandPath(cfg.Paths.Script)
	cfg.Paths.ParticipantImage = ExpandPath(cfg.Paths.ParticipantImage)
	cfg.Paths.JournalDB = ExpandPath(cfg.Paths.JournalDB)
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

func applyDefaults(cfg *Config) {

	// Paths defaults. The producer derives its flag file name from the
	// frame file by convention (frames.mmap -> frames_flag.mmap), so the
	// default flag path follows the frame path.
	if cfg.Paths.FrameFile == "" {
		cfg.Paths.FrameFile = "/tmp/proctorlink/frames.mmap"
	}
	if cfg.Paths.FlagFile == "" {
		cfg.Paths.FlagFile = deriveFlagPath(cfg.Paths.FrameFile)
	}
	if cfg.Paths.AlertFile == "" {
		cfg.Paths.AlertFile = "/tmp/proctorlink/alerts.json"
	}
	if cfg.Paths.PythonBin == "" {
		cfg.Paths.PythonBin = "python3"
	}
	if cfg.Paths.Script == "" {
		cfg.Paths.Script = "proctor_main.py"
	}

	// Monitor defaults
	if cfg.Monitor.FPS == 0 {
		cfg.Monitor.FPS = 15
	}
	if cfg.Monitor.AlertPollInterval == "" {
		cfg.Monitor.AlertPollInterval = "200ms"
	}
	if cfg.Monitor.TerminateTimeout == "" {
		cfg.Monitor.TerminateTimeout = "5s"
	}
	if cfg.Monitor.RingLines == 0 {
		cfg.Monitor.RingLines = 500
	}
	if cfg.Monitor.LogLevel == "" {
		cfg.Monitor.LogLevel = "info"
	}

	// Capabilities default to enabled; the policy only ever disables.
	if !cfg.Capabilities.PhoneDetection && !cfg.Capabilities.FaceDetection &&
		!cfg.Capabilities.FaceMatching && !cfg.Capabilities.EyeTracking {
		cfg.Capabilities = CapabilitiesConfig{
			PhoneDetection: true,
			FaceDetection:  true,
			FaceMatching:   true,
			EyeTracking:    true,
		}
	}
}

func deriveFlagPath(framePath string) string {
	if strings.HasSuffix(framePath, ".mmap") {
		return strings.TrimSuffix(framePath, ".mmap") + "_flag.mmap"
	}
	return framePath + "_flag"
}
