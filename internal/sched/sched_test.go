package sched

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestLoop_ManualTicks(t *testing.T) {
	var count atomic.Int64
	fired := make(chan struct{}, 16)

	manual := NewManual()
	loop := NewWithTicker(time.Second, func() {
		count.Add(1)
		fired <- struct{}{}
	}, manual.Factory())

	loop.Start()
	defer loop.Stop()

	for i := 0; i < 3; i++ {
		manual.Tick()
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("tick %d never fired", i)
		}
	}

	if got := count.Load(); got != 3 {
		t.Errorf("tick count: got %d, want 3", got)
	}
}

func TestLoop_StopIsSynchronous(t *testing.T) {
	var count atomic.Int64
	manual := NewManual()
	loop := NewWithTicker(time.Second, func() {
		count.Add(1)
	}, manual.Factory())

	loop.Start()
	loop.Stop()

	before := count.Load()

	// Ticks after Stop must not reach the callback.
	manual.Tick()
	time.Sleep(20 * time.Millisecond)

	if got := count.Load(); got != before {
		t.Errorf("callback fired after Stop: %d -> %d", before, got)
	}
}

func TestLoop_StopIdempotent(t *testing.T) {
	loop := New(time.Hour, func() {})
	loop.Start()
	loop.Stop()
	loop.Stop() // must not panic or block

	// Never-started loop.
	idle := New(time.Hour, func() {})
	idle.Stop()
}

func TestLoop_Restart(t *testing.T) {
	fired := make(chan struct{}, 1)
	loop := New(5*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	for i := 0; i < 3; i++ {
		loop.Start()
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatalf("cycle %d: no tick", i)
		}
		loop.Stop()
		if loop.Running() {
			t.Fatalf("cycle %d: still running after Stop", i)
		}
	}
}

func TestLoop_DoubleStartKeepsOneTicker(t *testing.T) {
	var count atomic.Int64
	loop := New(10*time.Millisecond, func() {
		count.Add(1)
	})

	loop.Start()
	loop.Start() // no-op
	time.Sleep(105 * time.Millisecond)
	loop.Stop()

	// One ticker at 10ms over ~100ms yields about 10 ticks; two leaked
	// tickers would roughly double that.
	if got := count.Load(); got > 15 {
		t.Errorf("tick count %d suggests more than one ticker", got)
	}
}
