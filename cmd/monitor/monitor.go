// Package monitor implements the proctorlink monitor CLI entry point.
//
// It runs the full bridge: spawns the inference process, streams frames
// and alerts, and prints every event as a JSON line on stdout for the
// host application to consume.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"proctorlink/internal/coordinator"
	"proctorlink/internal/supervisor"
	"proctorlink/pkg/config"
	"proctorlink/pkg/logger"
)

// envelope wraps an event for the stdout JSON stream.
type envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// emitter serialises event writes to stdout.
type emitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (e *emitter) emit(kind string, payload interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enc.Encode(envelope{Type: kind, Payload: payload})
}

// Run starts the bridge and blocks until SIGINT/SIGTERM.
func Run(configPath, sessionID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = config.Default()
	}

	log := logger.Init(cfg.Monitor.LogLevel)

	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().Unix())
	}

	c, err := coordinator.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building coordinator: %w", err)
	}
	defer c.Close()

	em := &emitter{enc: json.NewEncoder(os.Stdout)}
	c.AddListener(coordinator.Callbacks{
		Output:       func(ev coordinator.OutputEvent) { em.emit("output", ev) },
		Alert:        func(ev coordinator.AlertEvent) { em.emit("alert", ev) },
		Notification: func(ev coordinator.NotificationEvent) { em.emit("notification", ev) },
		Frame:        func(ev coordinator.FrameEvent) { em.emit("frame", ev) },
		Stopped:      func(ev coordinator.StoppedEvent) { em.emit("stopped", ev) },
	})

	caps := supervisor.Capabilities{
		PhoneDetection: cfg.Capabilities.PhoneDetection,
		FaceDetection:  cfg.Capabilities.FaceDetection,
		FaceMatching:   cfg.Capabilities.FaceMatching,
		EyeTracking:    cfg.Capabilities.EyeTracking,
	}

	res := c.Start(sessionID, caps)
	if !res.Success {
		for _, check := range res.Details {
			log.Error().Str("check", check.Name).Str("path", check.Path).Str("detail", check.Detail).Msg("Prerequisite failed")
		}
		return fmt.Errorf("starting session: %s", res.Error)
	}

	log.Info().Str("session_id", sessionID).Int("pid", res.PID).Msg("Monitoring started")

	if sres := c.StartFrameStream(cfg.Monitor.FPS); !sres.Success {
		// The frame transport may not exist until the producer creates
		// it; monitoring continues without the preview stream.
		log.Warn().Str("error", sres.Error).Msg("Frame stream unavailable")
	} else {
		c.EnablePreview()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	c.DisablePreview()
	if stop := c.Stop(); !stop.Success {
		log.Warn().Str("error", stop.Error).Msg("Stop reported failure")
	}
	return nil
}
