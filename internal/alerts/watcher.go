package alerts

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctorlink/internal/sched"
)

// DefaultPollInterval is the alert file polling cadence.
const DefaultPollInterval = 200 * time.Millisecond

// Event is one notification emitted for an active alert slot.
type Event struct {
	Index     int
	AlertType string
	Severity  Severity
	Category  string
	Message   string
	Timestamp time.Time
}

// Watcher polls the alert-state file and notifies listeners of every
// active slot.
//
// The watcher is level-triggered, not edge-triggered: a slot that stays
// active is re-reported on every poll tick. Suppressing repeats within
// a window is the consumer's responsibility; the state file carries no
// edge information to build on.
type Watcher struct {
	defs      []Definition
	log       zerolog.Logger
	newTicker sched.TickerFactory

	mu        sync.Mutex
	listeners []func(Event)
	loop      *sched.Loop
	path      string
}

// New creates a watcher over the given definition table. The table is
// copied; the watcher never mutates it.
func New(defs []Definition, log zerolog.Logger) *Watcher {
	return &Watcher{
		defs:      append([]Definition(nil), defs...),
		log:       log,
		newTicker: sched.WallClock,
	}
}

// SetTickerFactory overrides timer construction, used by tests to drive
// poll ticks deterministically. Must be called before Start.
func (w *Watcher) SetTickerFactory(f sched.TickerFactory) {
	w.newTicker = f
}

// Subscribe registers a listener for alert events. Listeners are
// invoked on the watcher's poll goroutine and must not block.
func (w *Watcher) Subscribe(fn func(Event)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins polling the alert-state file. A zero interval selects
// DefaultPollInterval. Starting an already-watching watcher fails.
func (w *Watcher) Start(path string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.loop != nil {
		return fmt.Errorf("alert watcher already watching %s", w.path)
	}

	w.path = path
	w.loop = sched.NewWithTicker(interval, w.tick, w.newTicker)
	w.loop.Start()

	w.log.Info().Str("path", path).Dur("interval", interval).Msg("Alert watcher started")
	return nil
}

// Stop halts polling. Synchronous: no events are delivered after Stop
// returns. Safe to call when not watching.
func (w *Watcher) Stop() {
	w.mu.Lock()
	loop, path := w.loop, w.path
	w.loop = nil
	w.mu.Unlock()

	if loop == nil {
		return
	}
	loop.Stop()
	w.log.Info().Str("path", path).Msg("Alert watcher stopped")
}

// Watching reports whether a poll loop is active.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loop != nil
}

// tick reads and classifies the alert state once. Any failure skips the
// tick; a bad read never halts future polling.
func (w *Watcher) tick() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// Absent or unreadable file is expected producer startup state.
		return
	}

	state, err := ParseState(data)
	if err != nil {
		w.log.Debug().Err(err).Msg("Skipping unparsable alert state")
		return
	}

	now := time.Now()
	for i, v := range state {
		if v != 1 || i >= len(w.defs) {
			continue
		}
		def := w.defs[i]
		w.emit(Event{
			Index:     i,
			AlertType: def.ID,
			Severity:  def.Severity,
			Category:  def.Category,
			Message:   def.Message,
			Timestamp: now,
		})
	}
}

func (w *Watcher) emit(ev Event) {
	w.mu.Lock()
	listeners := append(([]func(Event))(nil), w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
