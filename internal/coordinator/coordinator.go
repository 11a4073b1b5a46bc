// Package coordinator composes the frame stream, alert watcher, preview
// control and process supervisor behind the command/event surface the
// host application consumes.
//
// Components never share state with each other directly; every frame,
// alert, log line and exit notification flows through the coordinator's
// listener relay, and every file handle stays exclusively owned by the
// component that opened it.
package coordinator

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctorlink/internal/alerts"
	"proctorlink/internal/framechan"
	"proctorlink/internal/journal"
	"proctorlink/internal/stream"
	"proctorlink/internal/supervisor"
	"proctorlink/pkg/config"
)

// Coordinator wires the telemetry bridge together.
type Coordinator struct {
	cfg *config.Config
	log zerolog.Logger

	sup     *supervisor.Supervisor
	watcher *alerts.Watcher
	pump    *stream.Pump
	preview *framechan.PreviewFlag
	jrnl    *journal.Journal

	alertInterval time.Duration
	termTimeout   time.Duration

	mu        sync.Mutex
	sessionID string
	listeners []Listener
}

// New builds a coordinator from the configuration. A journal is opened
// when journal_db is configured; otherwise journaling is disabled.
func New(cfg *config.Config, log zerolog.Logger) (*Coordinator, error) {
	alertInterval, err := cfg.Monitor.ParseAlertPollInterval()
	if err != nil {
		return nil, err
	}
	termTimeout, err := cfg.Monitor.ParseTerminateTimeout()
	if err != nil {
		return nil, err
	}

	var jrnl *journal.Journal
	if cfg.Paths.JournalDB != "" {
		jrnl, err = journal.New(cfg.Paths.JournalDB, log)
		if err != nil {
			return nil, err
		}
	}

	policy := supervisor.Capabilities{
		PhoneDetection: cfg.Capabilities.PhoneDetection,
		FaceDetection:  cfg.Capabilities.FaceDetection,
		FaceMatching:   cfg.Capabilities.FaceMatching,
		EyeTracking:    cfg.Capabilities.EyeTracking,
	}

	sup := supervisor.New(supervisor.Config{
		PythonBin:        cfg.Paths.PythonBin,
		Script:           cfg.Paths.Script,
		ParticipantImage: cfg.Paths.ParticipantImage,
		RingLines:        cfg.Monitor.RingLines,
	}, policy, log)

	c := &Coordinator{
		cfg:           cfg,
		log:           log,
		sup:           sup,
		watcher:       alerts.New(alerts.DefaultDefinitions(), log),
		pump:          stream.New(0, log),
		preview:       framechan.OpenPreviewFlag(cfg.Paths.FlagFile, log),
		jrnl:          jrnl,
		alertInterval: alertInterval,
		termTimeout:   termTimeout,
	}

	c.watcher.Subscribe(c.relayAlert)
	return c, nil
}

// AddListener registers an event listener. Listeners added after Start
// receive subsequent events only.
func (c *Coordinator) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Coordinator) snapshotListeners() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Listener(nil), c.listeners...)
}

// Result is the generic command outcome.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StartResult reports a session start, with per-check details on
// validation failure.
type StartResult struct {
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
	Details []supervisor.Check `json:"details,omitempty"`
	PID     int                `json:"pid,omitempty"`
}

// Start spawns the inference process for a session and begins alert
// watching. Rejected while a session is already being monitored.
func (c *Coordinator) Start(sessionID string, caps supervisor.Capabilities) StartResult {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	pid, err := c.sup.Spawn(supervisor.SpawnOptions{
		SessionID:    sessionID,
		Capabilities: caps,
		OnOutput:     c.relayOutput,
		OnExit:       c.relayExit,
	})
	if err != nil {
		res := StartResult{Error: err.Error()}
		if verr, ok := err.(*supervisor.ValidationError); ok {
			res.Details = verr.Failed()
		}
		return res
	}

	if !c.watcher.Watching() {
		if err := c.watcher.Start(c.cfg.Paths.AlertFile, c.alertInterval); err != nil {
			// Roll back the spawn rather than monitor half-blind.
			c.sup.Terminate(pid, c.termTimeout)
			return StartResult{Error: err.Error()}
		}
	}

	c.journal(journal.Record{
		SessionID: sessionID,
		Kind:      journal.KindLifecycle,
		Message:   "inference process spawned",
		PID:       pid,
	})

	return StartResult{Success: true, PID: pid}
}

// Stop terminates the inference process and halts alert watching.
func (c *Coordinator) Stop() Result {
	c.watcher.Stop()

	pid := c.sup.ActivePID()
	if pid == 0 {
		return Result{Success: true}
	}

	res := c.sup.Terminate(pid, c.termTimeout)
	switch res {
	case supervisor.ExitedGracefully, supervisor.Killed, supervisor.AlreadyExited:
		c.journal(journal.Record{
			SessionID: c.currentSession(),
			Kind:      journal.KindLifecycle,
			Message:   "terminated: " + string(res),
			PID:       pid,
		})
		return Result{Success: true}
	default:
		return Result{Error: "process not found"}
	}
}

// StatusResult reports monitoring state.
type StatusResult struct {
	IsMonitoring bool   `json:"isMonitoring"`
	PID          int    `json:"pid,omitempty"`
	Status       string `json:"status,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Status never fails; sampling problems surface in the Error field.
func (c *Coordinator) Status() StatusResult {
	st := c.sup.Status()
	return StatusResult{
		IsMonitoring: st.Running,
		PID:          st.PID,
		Status:       string(st.Status),
		Error:        st.Err,
	}
}

// LogsResult carries retained process output.
type LogsResult struct {
	Success bool     `json:"success"`
	Logs    []string `json:"logs,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// GetLogs returns up to lines retained lines of the given stream.
func (c *Coordinator) GetLogs(kind string, lines int) LogsResult {
	logs, err := c.sup.Logs(kind, lines)
	if err != nil {
		return LogsResult{Error: err.Error()}
	}
	return LogsResult{Success: true, Logs: logs}
}

// SetParticipantImage updates the reference image for subsequent spawns.
func (c *Coordinator) SetParticipantImage(path string) Result {
	c.sup.SetParticipantImage(path)
	return Result{Success: true}
}

// FrameStreamResult reports frame stream start.
type FrameStreamResult struct {
	Success bool   `json:"success"`
	FPS     int    `json:"fps,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StartFrameStream begins pumping frames to listeners at the given
// rate. An active stream is atomically replaced.
func (c *Coordinator) StartFrameStream(fps int) FrameStreamResult {
	if err := c.pump.Start(c.cfg.Paths.FrameFile, fps, c.relayFrame); err != nil {
		return FrameStreamResult{Error: err.Error()}
	}
	return FrameStreamResult{Success: true, FPS: fps}
}

// StopFrameStream halts the frame pump. Idempotent.
func (c *Coordinator) StopFrameStream() Result {
	c.pump.Stop()
	return Result{Success: true}
}

// EnablePreview tells the producer to write frames.
func (c *Coordinator) EnablePreview() Result {
	if err := c.preview.Enable(); err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true}
}

// DisablePreview tells the producer to skip frame work.
func (c *Coordinator) DisablePreview() Result {
	if err := c.preview.Disable(); err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true}
}

// FrameInfoResult carries header metadata without payload.
type FrameInfoResult struct {
	Success     bool   `json:"success"`
	Width       uint32 `json:"width,omitempty"`
	Height      uint32 `json:"height,omitempty"`
	Channels    uint32 `json:"channels,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	PayloadSize uint32 `json:"payloadSize,omitempty"`
	Error       string `json:"error,omitempty"`
}

// GetFrameInfo exposes the last-read header fields for lightweight
// metadata polling.
func (c *Coordinator) GetFrameInfo() FrameInfoResult {
	hdr, ok, err := c.pump.FrameInfo()
	if err != nil {
		return FrameInfoResult{Error: err.Error()}
	}
	if !ok {
		return FrameInfoResult{Error: "no frame yet"}
	}
	return FrameInfoResult{
		Success:     true,
		Width:       hdr.Width,
		Height:      hdr.Height,
		Channels:    hdr.Channels,
		Timestamp:   hdr.Timestamp().UnixMilli(),
		PayloadSize: hdr.PayloadSize,
	}
}

// Close releases everything: terminates tracked processes, stops the
// watcher and pump, and closes the preview flag and journal. Used at
// host shutdown so no inference process is orphaned.
func (c *Coordinator) Close() {
	c.watcher.Stop()
	c.pump.Stop()
	c.sup.TerminateAll(c.termTimeout)
	c.preview.Close()
	if c.jrnl != nil {
		c.jrnl.Close()
	}
	c.log.Info().Msg("Coordinator closed")
}

func (c *Coordinator) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Coordinator) journal(rec journal.Record) {
	if c.jrnl == nil {
		return
	}
	if err := c.jrnl.Append(rec); err != nil {
		c.log.Warn().Err(err).Msg("Journal write failed")
	}
}

// relayOutput forwards one child stdout/stderr line.
func (c *Coordinator) relayOutput(line, kind string) {
	ev := OutputEvent{Data: line, Type: kind}
	for _, l := range c.snapshotListeners() {
		l.OnOutput(ev)
	}
}

// relayExit forwards process exit.
func (c *Coordinator) relayExit(code int, signal string) {
	c.journal(journal.Record{
		SessionID: c.currentSession(),
		Kind:      journal.KindLifecycle,
		Message:   "inference process exited",
	})

	ev := StoppedEvent{Code: code, Signal: signal}
	for _, l := range c.snapshotListeners() {
		l.OnStopped(ev)
	}
}

// relayAlert forwards one watcher event as both an alert and a
// notification, and journals it.
func (c *Coordinator) relayAlert(ev alerts.Event) {
	c.journal(journal.Record{
		SessionID: c.currentSession(),
		Kind:      journal.KindAlert,
		Category:  ev.Category,
		Severity:  string(ev.Severity),
		Message:   ev.Message,
	})

	alert := AlertEvent{
		Index:     ev.Index,
		AlertType: ev.AlertType,
		Severity:  string(ev.Severity),
		Category:  ev.Category,
		Message:   ev.Message,
		Timestamp: ev.Timestamp,
	}
	note := NotificationEvent{
		Type:      ev.AlertType,
		Message:   ev.Message,
		Category:  ev.Category,
		Timestamp: ev.Timestamp,
	}
	for _, l := range c.snapshotListeners() {
		l.OnAlert(alert)
		l.OnNotification(note)
	}
}

// relayFrame forwards one pumped frame with its payload base64 encoded.
func (c *Coordinator) relayFrame(f *framechan.Frame) {
	ev := FrameEvent{
		Width:     f.Header.Width,
		Height:    f.Header.Height,
		Timestamp: f.Header.Timestamp(),
		Data:      base64.StdEncoding.EncodeToString(f.Payload),
		Format:    "jpeg",
	}
	for _, l := range c.snapshotListeners() {
		l.OnFrame(ev)
	}
}
