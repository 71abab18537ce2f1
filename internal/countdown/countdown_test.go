package countdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentworkforce/homepage/internal/temporal"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDeriveDecomposesDistance(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	got := Derive(now.Add(90061000*time.Millisecond), now)
	want := State{Days: 1, Hours: 1, Minutes: 1, Seconds: 1}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got.String() != "01d 01h 01m 01s" {
		t.Fatalf("unexpected string %q", got.String())
	}
}

func TestDeriveClampsAtZero(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := Derive(now, now); !got.IsZero() {
		t.Fatalf("expected zero at deadline, got %+v", got)
	}
	if got := Derive(now.Add(-time.Hour), now); !got.IsZero() {
		t.Fatalf("expected zero after deadline, got %+v", got)
	}
	if got := Derive(now.Add(999*time.Millisecond), now); !got.IsZero() {
		t.Fatalf("expected sub-second remainder to floor to zero, got %+v", got)
	}
}

func TestDeriveValuesMixesNaiveAndISO(t *testing.T) {
	got := DeriveValues("2025-03-15 23:59:00", "2025-03-15T23:58:30", temporal.Normalizer{})
	if got != (State{Seconds: 30}) {
		t.Fatalf("expected 30 seconds left, got %+v", got)
	}
	ist := temporal.Normalizer{Location: time.FixedZone("IST", 5*3600+1800)}
	got = DeriveValues("2025-03-15 23:59:00", "2025-03-15T18:28:00Z", ist)
	if got != (State{Minutes: 1}) {
		t.Fatalf("expected 1 minute left across explicit offset, got %+v", got)
	}
}

func TestDeriveValuesToleratesInvalidInput(t *testing.T) {
	if got := DeriveValues("", "2025-03-15T23:58:30", temporal.Normalizer{}); !got.IsZero() {
		t.Fatalf("expected zero for empty deadline, got %+v", got)
	}
	if got := DeriveValues("2025-03-15 23:59:00", "Invalid Date", temporal.Normalizer{}); !got.IsZero() {
		t.Fatalf("expected zero for invalid now, got %+v", got)
	}
}

func TestRenderInactiveShowsClosedMessage(t *testing.T) {
	v := Render(false, State{Days: 3}, "Registration closed")
	if v.Active || v.Message != "Registration closed" || !v.State.IsZero() {
		t.Fatalf("unexpected inactive view %+v", v)
	}
	if v.String() != "Registration closed" {
		t.Fatalf("unexpected inactive string %q", v.String())
	}
	expired := Render(true, State{}, "Registration closed")
	if !expired.Active || !expired.Expired || expired.Message != "" {
		t.Fatalf("unexpected expired view %+v", expired)
	}
	running := Render(true, State{Hours: 2}, "")
	if running.Expired || running.String() != "00d 02h 00m 00s" {
		t.Fatalf("unexpected running view %+v", running)
	}
}

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

func TestTickerStopsAfterDeadline(t *testing.T) {
	start := time.Date(2025, 3, 15, 23, 59, 57, 0, time.UTC)
	clock := &steppingClock{now: start, step: time.Second}
	var mu sync.Mutex
	var states []State
	ticker := Start(context.Background(), TickerOptions{
		Deadline: start.Add(3 * time.Second),
		Active:   true,
		Interval: time.Millisecond,
		Clock:    clock,
		OnTick: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	deadline := time.After(2 * time.Second)
	for {
		if ticker.Current().IsZero() && func() bool { mu.Lock(); defer mu.Unlock(); return len(states) > 0 }() {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("ticker did not reach zero")
		case <-time.After(time.Millisecond):
		}
	}
	ticker.Stop()

	mu.Lock()
	defer mu.Unlock()
	want := []State{{Seconds: 3}, {Seconds: 2}, {Seconds: 1}, {}}
	if len(states) != len(want) {
		t.Fatalf("expected %d states, got %+v", len(want), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d: expected %+v, got %+v", i, want[i], states[i])
		}
	}
}

func TestTickerInactiveNeverTicks(t *testing.T) {
	called := false
	ticker := Start(context.Background(), TickerOptions{
		Deadline: time.Now().Add(time.Hour),
		Active:   false,
		Interval: time.Millisecond,
		OnTick:   func(State) { called = true },
	})
	ticker.Stop()
	if called {
		t.Fatalf("inactive ticker should not emit")
	}
}

func TestTickerStopIsIdempotentAndCancelsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan State, 64)
	ticker := Start(ctx, TickerOptions{
		Deadline: time.Now().Add(time.Hour),
		Active:   true,
		Interval: time.Millisecond,
		OnTick: func(s State) {
			select {
			case ticks <- s:
			default:
			}
		},
	})
	<-ticks
	cancel()
	ticker.Stop()
	ticker.Stop()
}

func TestTickerResetSwitchesDeadline(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &steppingClock{now: now}
	ticks := make(chan State, 64)
	ticker := Start(context.Background(), TickerOptions{
		Deadline: now.Add(time.Hour),
		Active:   true,
		Interval: time.Hour,
		Clock:    clock,
		OnTick:   func(s State) { ticks <- s },
	})
	defer ticker.Stop()
	if got := <-ticks; got != (State{Hours: 1}) {
		t.Fatalf("expected 1 hour, got %+v", got)
	}
	ticker.Reset(now.Add(2*24*time.Hour), true)
	if got := <-ticks; got != (State{Days: 2}) {
		t.Fatalf("expected 2 days after reset, got %+v", got)
	}
	ticker.Reset(now.Add(time.Minute), false)
	select {
	case s := <-ticks:
		t.Fatalf("expected no tick while inactive, got %+v", s)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTickerConcurrentResetsKeepOneGoroutine(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	ticks := 0
	ticker := Start(context.Background(), TickerOptions{
		Deadline: now.Add(time.Hour),
		Active:   true,
		Interval: time.Millisecond,
		Clock:    &steppingClock{now: now},
		OnTick: func(State) {
			mu.Lock()
			ticks++
			mu.Unlock()
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				ticker.Reset(now.Add(time.Duration(i+j+1)*time.Hour), true)
			}
		}(i)
	}
	wg.Wait()
	ticker.Stop()

	mu.Lock()
	after := ticks
	mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if ticks != after {
		t.Fatalf("ticks continued after Stop: %d then %d", after, ticks)
	}
	goleak.VerifyNone(t)
}
