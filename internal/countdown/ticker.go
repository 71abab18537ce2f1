package countdown

import (
	"context"
	"sync"
	"time"
)

const DefaultInterval = time.Second

// Clock supplies the current time. Tests substitute a fixed or stepping clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

type TickerOptions struct {
	Deadline time.Time
	Active   bool
	Interval time.Duration
	Clock    Clock
	// OnTick receives every derived state, including the final zero state.
	// It runs on the ticker goroutine and must not call Reset or Stop.
	OnTick func(State)
}

// Ticker re-derives a countdown on a fixed interval until the deadline passes
// or Stop is called. The owner must call Stop when the countdown goes away.
type Ticker struct {
	// resetMu serializes Reset and Stop across cancel, wait and restart.
	resetMu  sync.Mutex
	mu       sync.Mutex
	parent   context.Context
	opts     TickerOptions
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
	lastSeen State
}

// Start begins ticking. An inactive countdown starts no goroutine.
func Start(ctx context.Context, opts TickerOptions) *Ticker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	t := &Ticker{parent: ctx, opts: opts}
	t.mu.Lock()
	t.startLocked()
	t.mu.Unlock()
	return t
}

func (t *Ticker) startLocked() {
	if !t.opts.Active || t.stopped {
		t.cancel = nil
		t.done = nil
		return
	}
	ctx, cancel := context.WithCancel(t.parent)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	go t.run(ctx, t.opts, done)
}

func (t *Ticker) run(ctx context.Context, opts TickerOptions, done chan struct{}) {
	defer close(done)
	if !t.emit(opts) {
		return
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.emit(opts) {
				return
			}
		}
	}
}

// emit publishes one state and reports whether ticking should continue.
func (t *Ticker) emit(opts TickerOptions) bool {
	state := Derive(opts.Deadline, opts.Clock.Now())
	t.mu.Lock()
	t.lastSeen = state
	t.mu.Unlock()
	if opts.OnTick != nil {
		opts.OnTick(state)
	}
	return !state.IsZero()
}

// Current returns the most recently emitted state.
func (t *Ticker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeen
}

// Reset cancels the running tick and starts a new one for the given deadline
// and active flag.
func (t *Ticker) Reset(deadline time.Time, active bool) {
	t.resetMu.Lock()
	defer t.resetMu.Unlock()
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.Deadline = deadline
	t.opts.Active = active
	t.lastSeen = State{}
	t.startLocked()
}

// Stop cancels ticking and waits for the goroutine to exit. It is safe to
// call more than once.
func (t *Ticker) Stop() {
	t.resetMu.Lock()
	defer t.resetMu.Unlock()
	t.mu.Lock()
	t.stopped = true
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}
