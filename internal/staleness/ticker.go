package staleness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval is how often the "last updated" text is recomputed.
const DefaultInterval = 60 * time.Second

// Ticker bumps a render epoch on a fixed cadence. It never fetches data: elapsed
// time changes the staleness text even when nothing new has arrived, so views
// compare epochs to know when to redraw.
type Ticker struct {
	clock    clockwork.Clock
	interval time.Duration
	epoch    atomic.Uint64

	mu        sync.Mutex
	listeners []func(epoch uint64)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTicker creates a stopped ticker. A nil clock uses real time and a
// non-positive interval uses DefaultInterval.
func NewTicker(clock clockwork.Clock, interval time.Duration) *Ticker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{clock: clock, interval: interval}
}

// OnTick registers fn to run after every tick with the new epoch.
func (t *Ticker) OnTick(fn func(epoch uint64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Epoch is the number of ticks so far.
func (t *Ticker) Epoch() uint64 {
	return t.epoch.Load()
}

// Interval returns the tick cadence.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Start begins ticking until ctx is done or Stop is called. Starting a running
// ticker is a no-op.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	// Created before the goroutine so fake clocks see the ticker once Start returns.
	tk := t.clock.NewTicker(t.interval)
	go t.run(ctx, tk, t.done)
}

func (t *Ticker) run(ctx context.Context, tk clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.Chan():
			t.tick()
		}
	}
}

func (t *Ticker) tick() {
	epoch := t.epoch.Add(1)

	t.mu.Lock()
	listeners := append([]func(uint64){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(epoch)
	}
}

// Stop halts the ticker and waits for its goroutine to exit.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
