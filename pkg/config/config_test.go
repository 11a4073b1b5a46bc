package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	content := `
[paths]
  frame_file = "/tmp/p/frames.mmap"
  alert_file = "/tmp/p/alerts.json"
  python_bin = "/usr/bin/python3"
  script = "/opt/proctor/proctor_main.py"
  participant_image = "/opt/proctor/participant.png"
  journal_db = "/tmp/p/session.db"

[monitor]
  fps = 30
  alert_poll_interval = "100ms"
  terminate_timeout = "3s"
  ring_lines = 200
  log_level = "debug"

[capabilities]
  phone_detection = true
  face_detection = true
  face_matching = false
  eye_tracking = true
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Paths.FrameFile != "/tmp/p/frames.mmap" {
		t.Errorf("Paths.FrameFile: got %s, want /tmp/p/frames.mmap", cfg.Paths.FrameFile)
	}
	if cfg.Paths.FlagFile != "/tmp/p/frames_flag.mmap" {
		t.Errorf("Paths.FlagFile: got %s, want derived /tmp/p/frames_flag.mmap", cfg.Paths.FlagFile)
	}
	if cfg.Monitor.FPS != 30 {
		t.Errorf("Monitor.FPS: got %d, want 30", cfg.Monitor.FPS)
	}
	if cfg.Monitor.LogLevel != "debug" {
		t.Errorf("Monitor.LogLevel: got %s, want debug", cfg.Monitor.LogLevel)
	}
	if cfg.Capabilities.FaceMatching {
		t.Error("Capabilities.FaceMatching: got true, want false")
	}
	if !cfg.Capabilities.EyeTracking {
		t.Error("Capabilities.EyeTracking: got false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	// Minimal config, all defaults should apply
	content := `
[monitor]
  log_level = "warn"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Monitor.FPS != 15 {
		t.Errorf("default FPS: got %d, want 15", cfg.Monitor.FPS)
	}
	if cfg.Monitor.AlertPollInterval != "200ms" {
		t.Errorf("default AlertPollInterval: got %s, want 200ms", cfg.Monitor.AlertPollInterval)
	}
	if cfg.Paths.PythonBin != "python3" {
		t.Errorf("default PythonBin: got %s, want python3", cfg.Paths.PythonBin)
	}
	if !cfg.Capabilities.PhoneDetection {
		t.Error("default PhoneDetection: got false, want true")
	}

	interval, err := cfg.Monitor.ParseAlertPollInterval()
	if err != nil {
		t.Fatalf("parse interval: %v", err)
	}
	if interval != 200*time.Millisecond {
		t.Errorf("parsed interval: got %v, want 200ms", interval)
	}

	timeout, err := cfg.Monitor.ParseTerminateTimeout()
	if err != nil {
		t.Fatalf("parse timeout: %v", err)
	}
	if timeout != 5*time.Second {
		t.Errorf("parsed timeout: got %v, want 5s", timeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.toml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestExpandPath(t *testing.T) {
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %s", got)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	if got := ExpandPath("~/frames.mmap"); got != filepath.Join(home, "frames.mmap") {
		t.Errorf("tilde expansion: got %s", got)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Paths.FrameFile == "" || cfg.Paths.FlagFile == "" {
		t.Error("Default() left paths empty")
	}
	if cfg.Monitor.RingLines != 500 {
		t.Errorf("default RingLines: got %d, want 500", cfg.Monitor.RingLines)
	}
}
