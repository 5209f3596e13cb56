package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

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

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in Closed that
	// opens the circuit.
	FailureThreshold int
	// Timeout is how long the circuit stays Open before admitting probes.
	Timeout time.Duration
	// SuccessThreshold is the number of consecutive probe successes in
	// HalfOpen that closes the circuit.
	SuccessThreshold int
	// HalfOpenMaxRequests caps how many probe requests may be in flight
	// concurrently while HalfOpen.
	HalfOpenMaxRequests int
	// HalfOpenTimeout forces HalfOpen back to Open when no decisive outcome
	// arrives in time, so a quiet period cannot wedge the breaker.
	HalfOpenTimeout time.Duration
	// Logger receives state transition events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// CircuitBreaker is a failure-based call gate. All state lives behind one
// mutex; Allow, RecordSuccess and RecordFailure never block on anything but
// that mutex and never panic.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig
	logger *zap.Logger

	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	halfOpenEnteredAt    time.Time
	halfOpenInFlight     int

	now func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.HalfOpenTimeout <= 0 {
		config.HalfOpenTimeout = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CircuitBreaker{
		config: config,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a request may proceed. In Open it returns false until
// the recovery timeout elapses; then the breaker moves to HalfOpen and admits
// up to HalfOpenMaxRequests concurrent probes.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.now())

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		return false
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxRequests {
			return false
		}
		cb.halfOpenInFlight++
		return true
	default:
		return false
	}
}

// Release returns a probe slot taken by Allow without recording an outcome.
// Calls that fail for reasons unrelated to endpoint health (bad credentials,
// malformed input) use it so a half-open slot is not lost.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.now())

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.now())

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.advance(now)

	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.openedAt = now
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// A single probe failure reopens the circuit with a fresh window.
		cb.openedAt = now
		cb.transition(StateOpen)
	}
}

// State returns the current state after applying any pending time-based
// transition.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advance(cb.now())
	return cb.state
}

// advance applies time-based transitions. Callers must hold the mutex.
func (cb *CircuitBreaker) advance(now time.Time) {
	switch cb.state {
	case StateOpen:
		if now.Sub(cb.openedAt) >= cb.config.Timeout {
			cb.halfOpenEnteredAt = now
			cb.transition(StateHalfOpen)
		}
	case StateHalfOpen:
		if cb.config.HalfOpenTimeout > 0 && now.Sub(cb.halfOpenEnteredAt) >= cb.config.HalfOpenTimeout {
			cb.openedAt = now
			cb.transition(StateOpen)
		}
	}
}

// transition switches state and resets per-state counters. Callers must hold
// the mutex and set openedAt/halfOpenEnteredAt beforehand when relevant.
func (cb *CircuitBreaker) transition(next CircuitState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInFlight = 0

	cb.logger.Debug("circuit breaker state change",
		zap.String("from", prev.String()),
		zap.String("to", next.String()))
}
