// Package stream pumps frames from the frame transport to a consumer
// at a fixed rate.
//
// The pump is "latest or nothing": each tick reads whatever frame the
// transport currently holds and forwards it, with no queueing. A slow
// consumer misses intermediate frames; it can never back up the
// channel. The frame ticker is independent of the alert watcher's.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctorlink/internal/framechan"
	"proctorlink/internal/sched"
)

// ErrNotStreaming is returned by FrameInfo when no stream is active.
var ErrNotStreaming = errors.New("frame stream is not active")

// Consumer receives each forwarded frame. Called on the pump's tick
// goroutine; it must not block.
type Consumer func(*framechan.Frame)

// Pump owns one frame channel and one ticker while streaming.
type Pump struct {
	maxPayload uint32
	log        zerolog.Logger
	newTicker  sched.TickerFactory

	mu   sync.Mutex
	ch   *framechan.Channel
	loop *sched.Loop
	fps  int

	lastMu   sync.Mutex
	lastHdr  framechan.Header
	lastSeen bool
}

// New creates an idle pump. Zero maxPayload selects the transport
// default.
func New(maxPayload uint32, log zerolog.Logger) *Pump {
	return &Pump{
		maxPayload: maxPayload,
		log:        log,
		newTicker:  sched.WallClock,
	}
}

// SetTickerFactory overrides timer construction for deterministic
// tests. Must be called before Start.
func (p *Pump) SetTickerFactory(f sched.TickerFactory) {
	p.newTicker = f
}

// Start opens the frame transport at path and begins forwarding frames
// to consumer at the given rate. Starting while a stream is active
// atomically replaces it: the prior ticker and handle are released
// first, so two are never live at once.
func (p *Pump) Start(path string, fps int, consumer Consumer) error {
	if fps <= 0 {
		return fmt.Errorf("invalid fps %d", fps)
	}

	p.Stop()

	ch, err := framechan.Open(path, p.maxPayload, p.log)
	if err != nil {
		return fmt.Errorf("opening frame transport: %w", err)
	}

	interval := time.Second / time.Duration(fps)
	loop := sched.NewWithTicker(interval, func() {
		p.tick(ch, consumer)
	}, p.newTicker)

	p.mu.Lock()
	p.ch = ch
	p.loop = loop
	p.fps = fps
	p.mu.Unlock()

	loop.Start()
	p.log.Info().Str("path", path).Int("fps", fps).Msg("Frame stream started")
	return nil
}

// tick reads the latest frame and forwards it. Missing or corrupt data
// is a skipped tick, never a stream failure.
func (p *Pump) tick(ch *framechan.Channel, consumer Consumer) {
	if !ch.IsOpen() {
		return
	}

	frame, err := ch.ReadFrame()
	if err != nil {
		p.log.Debug().Err(err).Msg("Skipping frame tick")
		return
	}
	if frame == nil {
		return
	}

	p.lastMu.Lock()
	p.lastHdr = frame.Header
	p.lastSeen = true
	p.lastMu.Unlock()

	consumer(frame)
}

// Stop cancels the ticker and closes the transport handle. Idempotent;
// after Stop returns no further frames are delivered.
func (p *Pump) Stop() {
	p.mu.Lock()
	loop, ch := p.loop, p.ch
	p.loop, p.ch = nil, nil
	p.fps = 0
	p.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	if ch != nil {
		ch.Close()
		p.log.Info().Msg("Frame stream stopped")
	}
}

// Active reports whether a stream is running.
func (p *Pump) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop != nil
}

// FPS returns the active stream rate, 0 when idle.
func (p *Pump) FPS() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fps
}

// FrameInfo reads the current header without consuming the payload.
// While streaming it reads live; when idle it falls back to the last
// header a tick observed, and ErrNotStreaming when there is none.
func (p *Pump) FrameInfo() (framechan.Header, bool, error) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()

	if ch != nil && ch.IsOpen() {
		return ch.ReadHeader()
	}

	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	if p.lastSeen {
		return p.lastHdr, true, nil
	}
	return framechan.Header{}, false, ErrNotStreaming
}
