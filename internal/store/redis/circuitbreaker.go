package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned for publishes attempted while the breaker is
// open. The buffered publisher treats it as "park the event locally".
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's position.
type State int

const (
	StateClosed   State = 0 // publishes go to Redis
	StateOpen     State = 1 // publishes rejected until the reset timeout
	StateHalfOpen State = 2 // one probe publish allowed through
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

// CircuitBreaker keeps a flapping or down Redis from stalling the event
// pipeline. maxFailures consecutive publish errors open the breaker; while
// open, every call fails fast with ErrCircuitOpen so events flow into the
// local buffer instead of waiting out Redis timeouts one by one. After
// resetTimeout a single probe publish is let through: success closes the
// breaker (and the buffered publisher flushes), failure reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	lastFailure  time.Time
	maxFailures  int
	resetTimeout time.Duration

	// OnStateChange fires on every transition (metrics, flush-on-close).
	OnStateChange func(from, to State)
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:        StateClosed,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// Execute runs one publish through the breaker. The publish itself runs
// outside the lock; only the state bookkeeping is serialized.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err)
	return err
}

// allow decides whether a call may proceed, moving an expired open state to
// half-open on the way.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) <= cb.resetTimeout {
			return false
		}
		cb.transition(StateHalfOpen)
	}
	return true
}

// record folds a call result into the breaker state.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		// A failed half-open probe reopens immediately; in closed state the
		// breaker trips once the consecutive-failure budget is spent.
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
}

// CurrentState reports the breaker's position.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
