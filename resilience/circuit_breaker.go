package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of a CircuitBreaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned while the breaker refuses calls.
	ErrCircuitOpen = errors.New("circuit breaker: circuit is open")

	// ErrProbeInFlight is returned to callers that arrive while the single
	// half-open probe is still running.
	ErrProbeInFlight = errors.New("circuit breaker: half-open probe in flight")
)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// Name prefixes rejection errors, e.g. "supabase: circuit breaker: ...".
	Name string
	// MaxFailures is the number of consecutive upstream failures that open
	// the circuit.
	MaxFailures int
	// Cooldown is how long the circuit stays open before one probe call is
	// let through.
	Cooldown time.Duration
	// OnStateChange, if set, is called on every transition with the breaker
	// locked; it must not call back into the breaker.
	OnStateChange func(from, to State)
}

// CircuitBreaker stops calling an upstream after repeated failures and
// lets a single probe through once the cooldown has elapsed. Errors that
// are not retryable (client errors such as a PostgREST 4xx) never count
// against the upstream.
type CircuitBreaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		if cb.cfg.Name != "" {
			return fmt.Errorf("%s: %w", cb.cfg.Name, err)
		}
		return err
	}
	err := fn()
	cb.record(countsAsFailure(err))
	return err
}

// countsAsFailure reports whether err indicates an unhealthy upstream.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
	case StateHalfOpen:
		if cb.probing {
			return ErrProbeInFlight
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probing = false
		if failed {
			cb.failures = cb.cfg.MaxFailures
			cb.open()
		} else {
			cb.failures = 0
			cb.transition(StateClosed)
		}
		return
	}

	if !failed {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// State returns the current state. An open circuit whose cooldown has
// elapsed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive upstream failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
