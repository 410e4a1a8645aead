package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TickSource drives the scheduler. The production source fires on a
// wall-clock interval; tests and the debug HTTP endpoint use a manual
// source instead.
type TickSource interface {
	// Start begins delivering ticks to the given callback.
	Start(ctx context.Context, tick func()) error

	// Stop ends tick delivery and waits for the source to wind down.
	Stop(ctx context.Context) error
}

// IntervalTicker delivers ticks at a fixed interval. The interval can
// be changed while running, which the config reload path uses.
type IntervalTicker struct {
	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewIntervalTicker creates a ticker with the given interval. A zero or
// negative interval falls back to one minute.
func NewIntervalTicker(interval time.Duration) *IntervalTicker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IntervalTicker{interval: interval}
}

func (t *IntervalTicker) Start(ctx context.Context, tick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return fmt.Errorf("interval ticker already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ticker := time.NewTicker(t.interval)
	t.cancel = cancel
	t.done = done
	t.ticker = ticker

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
	return nil
}

// SetInterval changes the tick cadence. A running ticker resets
// immediately, with the next tick one full new interval out.
func (t *IntervalTicker) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if interval == t.interval {
		return
	}
	t.interval = interval
	if t.ticker != nil {
		t.ticker.Reset(interval)
	}
}

func (t *IntervalTicker) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done, t.ticker = nil, nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ManualTicker delivers a tick each time Fire is called and never on
// its own.
type ManualTicker struct {
	mu   sync.Mutex
	tick func()
}

// NewManualTicker creates an idle manual tick source.
func NewManualTicker() *ManualTicker { return &ManualTicker{} }

func (t *ManualTicker) Start(ctx context.Context, tick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = tick
	return nil
}

func (t *ManualTicker) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = nil
	return nil
}

// Fire delivers one tick. Firing before Start or after Stop is a no-op,
// so callers need no coordination with the scheduler lifecycle.
func (t *ManualTicker) Fire() {
	t.mu.Lock()
	tick := t.tick
	t.mu.Unlock()
	if tick != nil {
		tick()
	}
}
