package events

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute when the breaker is refusing calls.
var ErrCircuitOpen = errors.New("events: circuit breaker open")

// CircuitState is one of the three states a CircuitBreaker can be in.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// CircuitBreakerConfig controls when a CircuitBreaker trips and how it
// probes recovery.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures trip the breaker from closed to open.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before allowing a
	// trial request through in half-open state.
	ResetTimeout time.Duration
	// HalfOpenSuccesses is how many consecutive trial successes in
	// half-open are required to close the breaker again.
	HalfOpenSuccesses int
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures, waits 30s
// before probing, and wants 2 consecutive successful probes to close.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenSuccesses: 2,
	}
}

// CircuitBreaker guards a single webhook endpoint against being hammered
// while it is failing. It is closed by default, opens after a run of
// consecutive failures, and reopens if a half-open trial request fails.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu               sync.Mutex
	state            CircuitState
	consecutiveFails int
	halfOpenOK       int
	openedAt         time.Time
}

// NewCircuitBreaker creates a closed CircuitBreaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Allow reports whether a call should proceed. It transitions open to
// half-open once ResetTimeout has elapsed, and must be paired with a
// RecordSuccess/RecordFailure call reporting the outcome.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.ResetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenOK = 0
			return true
		}
		return false
	case StateHalfOpen:
		// Every caller is let through while half-open; HalfOpenSuccesses
		// successes close the breaker and a failure reopens it.
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call. In half-open state it counts
// toward HalfOpenSuccesses before closing the breaker; in closed state it
// resets the consecutive-failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.config.HalfOpenSuccesses {
			cb.state = StateClosed
			cb.consecutiveFails = 0
			cb.halfOpenOK = 0
		}
	default:
		cb.consecutiveFails = 0
	}
}

// RecordFailure reports a failed call. A failure while half-open trips the
// breaker back open immediately; enough consecutive failures while closed
// trips it open for the first time.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.trip()
	default:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.config.FailureThreshold {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.halfOpenOK = 0
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn if the breaker allows it, recording the outcome. Returns
// ErrCircuitOpen without calling fn when the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
