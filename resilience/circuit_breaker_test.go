package resilience

import (
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failure")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.now
	return cb, clock
}

func failN(cb *CircuitBreaker, n int, err error) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return err })
	}
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{Name: "supabase", MaxFailures: 3, Cooldown: time.Second})

	failN(cb, 2, errUpstream)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after 2 failures, got %s", cb.State())
	}

	failN(cb, 1, errUpstream)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("open circuit must not run the call")
	}
	if err.Error() != "supabase: circuit breaker: circuit is open" {
		t.Errorf("unexpected error text %q", err)
	}
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Second})

	failN(cb, 5, Permanent(errors.New("409 conflict")))

	if cb.State() != StateClosed {
		t.Errorf("client errors must not open the circuit, got %s", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("expected no counted failures, got %d", cb.Failures())
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{MaxFailures: 5, Cooldown: time.Second})

	failN(cb, 3, errUpstream)
	if cb.Failures() != 3 {
		t.Fatalf("expected 3 failures, got %d", cb.Failures())
	}

	_ = cb.Execute(func() error { return nil })
	if cb.Failures() != 0 {
		t.Errorf("expected failures to reset after success, got %d", cb.Failures())
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: 30 * time.Second})
	failN(cb, 2, errUpstream)

	clock.advance(29 * time.Second)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit still open before cooldown, got %v", err)
	}

	clock.advance(time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreakerSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second})
	failN(cb, 1, errUpstream)
	clock.advance(time.Second)

	var inner error
	_ = cb.Execute(func() error {
		if cb.State() != StateHalfOpen {
			t.Errorf("expected half-open during probe, got %s", cb.State())
		}
		inner = cb.Execute(func() error { return nil })
		return nil
	})
	if !errors.Is(inner, ErrProbeInFlight) {
		t.Errorf("expected ErrProbeInFlight for a concurrent call, got %v", inner)
	}
	if IsRetryable(inner) {
		t.Error("probe rejection must not be retried")
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Second})
	failN(cb, 2, errUpstream)

	clock.advance(time.Second)
	failN(cb, 1, errUpstream)

	if cb.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %s", cb.State())
	}
	clock.advance(500 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected a fresh cooldown after the failed probe, got %v", err)
	}
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	var changes []string
	cb, clock := newTestBreaker(BreakerConfig{
		MaxFailures: 1,
		Cooldown:    time.Second,
		OnStateChange: func(from, to State) {
			changes = append(changes, from.String()+"->"+to.String())
		},
	})

	failN(cb, 1, errUpstream)
	clock.advance(time.Second)
	_ = cb.Execute(func() error { return nil })

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(changes) != len(want) {
		t.Fatalf("unexpected transitions %v", changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, changes[i], want[i])
		}
	}
}
