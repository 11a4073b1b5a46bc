// Package sched provides the fixed-interval polling loop used by the
// frame stream and the alert watcher.
//
// Each Loop owns one goroutine and fires a callback per tick. Ticks
// never overlap: the next tick cannot fire while the callback runs.
// Stop is synchronous: once it returns, the callback will not be
// invoked again. Ticker construction is injectable so tests can drive
// ticks deterministically instead of sleeping on wall-clock timers.
package sched

import (
	"sync"
	"time"
)

// Ticker is the minimal timer surface a Loop needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker for a given interval.
type TickerFactory func(time.Duration) Ticker

type wallTicker struct {
	t *time.Ticker
}

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

// WallClock is the default factory, backed by time.NewTicker.
func WallClock(interval time.Duration) Ticker {
	return wallTicker{t: time.NewTicker(interval)}
}

// Loop runs fn once per interval until stopped.
type Loop struct {
	interval  time.Duration
	fn        func()
	newTicker TickerFactory

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a wall-clock loop. The callback runs on the loop's own
// goroutine.
func New(interval time.Duration, fn func()) *Loop {
	return NewWithTicker(interval, fn, WallClock)
}

// NewWithTicker returns a loop using the given ticker factory.
func NewWithTicker(interval time.Duration, fn func(), factory TickerFactory) *Loop {
	return &Loop{interval: interval, fn: fn, newTicker: factory}
}

// Start begins ticking. Starting an already-running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	go l.run(l.newTicker(l.interval), l.stop, l.done)
}

func (l *Loop) run(ticker Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			// Re-check stop so a tick racing Stop is dropped.
			select {
			case <-stop:
				return
			default:
			}
			l.fn()
		}
	}
}

// Stop halts the loop and waits for the tick goroutine to exit. After
// Stop returns, the callback will not fire again. Safe to call more
// than once; a no-op when the loop was never started.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Manual is a test ticker driven by explicit Tick calls.
type Manual struct {
	ch chan time.Time
}

// NewManual returns a manually driven ticker.
func NewManual() *Manual {
	return &Manual{ch: make(chan time.Time)}
}

// Factory returns a TickerFactory that always yields this ticker.
func (m *Manual) Factory() TickerFactory {
	return func(time.Duration) Ticker { return m }
}

// Tick fires one tick and returns once the loop has picked it up, or
// immediately if the loop is gone.
func (m *Manual) Tick() {
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
	}
}

// C implements Ticker.
func (m *Manual) C() <-chan time.Time { return m.ch }

// Stop implements Ticker.
func (m *Manual) Stop() {}
