package coordinator

import "time"

// OutputEvent is one raw stdout/stderr line from the inference process.
type OutputEvent struct {
	Data string `json:"data"`
	Type string `json:"type"` // "stdout" or "stderr"
}

// AlertEvent is one classified alert slot observed active.
//
// Alerts are level-triggered: a slot that stays active is re-delivered
// on every poll tick. Consumers are expected to suppress repeats within
// a short window; that contract lives with the consumer, not here.
type AlertEvent struct {
	Index     int       `json:"index"`
	AlertType string    `json:"alertType"`
	Severity  string    `json:"severity"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationEvent is the user-facing rendering of an alert.
type NotificationEvent struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// FrameEvent carries one forwarded video frame. Data is the producer's
// encoded payload, base64 wrapped for transport to a UI consumer.
type FrameEvent struct {
	Width     uint32    `json:"width"`
	Height    uint32    `json:"height"`
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
	Format    string    `json:"format"`
}

// StoppedEvent reports inference process exit.
type StoppedEvent struct {
	Code   int    `json:"code"`
	Signal string `json:"signal"`
}

// Listener receives coordinator events. Callbacks fire on the
// coordinator's polling/capture goroutines and must not block.
type Listener interface {
	OnOutput(OutputEvent)
	OnAlert(AlertEvent)
	OnNotification(NotificationEvent)
	OnFrame(FrameEvent)
	OnStopped(StoppedEvent)
}

// Callbacks adapts optional funcs to the Listener interface; nil fields
// are skipped.
type Callbacks struct {
	Output       func(OutputEvent)
	Alert        func(AlertEvent)
	Notification func(NotificationEvent)
	Frame        func(FrameEvent)
	Stopped      func(StoppedEvent)
}

func (c Callbacks) OnOutput(ev OutputEvent) {
	if c.Output != nil {
		c.Output(ev)
	}
}

func (c Callbacks) OnAlert(ev AlertEvent) {
	if c.Alert != nil {
		c.Alert(ev)
	}
}

func (c Callbacks) OnNotification(ev NotificationEvent) {
	if c.Notification != nil {
		c.Notification(ev)
	}
}

func (c Callbacks) OnFrame(ev FrameEvent) {
	if c.Frame != nil {
		c.Frame(ev)
	}
}

func (c Callbacks) OnStopped(ev StoppedEvent) {
	if c.Stopped != nil {
		c.Stopped(ev)
	}
}
