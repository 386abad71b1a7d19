package fanout

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed means the circuit is closed (normal operation, requests allowed)
	StateClosed CircuitState = iota

	// StateOpen means the circuit is open (too many failures, requests blocked)
	StateOpen

	// StateHalfOpen means the circuit is testing if the source has recovered
	StateHalfOpen
)

// String returns a human-readable representation of the circuit state.
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

// CircuitBreakerConfig holds configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Default: 5.
	FailureThreshold int

	// Cooldown is the duration to wait before transitioning from Open to
	// Half-Open. Default: 30 seconds.
	Cooldown time.Duration

	// HalfOpenMaxRequests is the number of probe requests allowed in
	// Half-Open state. Default: 1.
	HalfOpenMaxRequests int
}

// DefaultCircuitBreakerConfig returns a configuration with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		Cooldown:            30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// sourceCircuit tracks the breaker state for a single source.
type sourceCircuit struct {
	state          CircuitState
	failures       int
	openedAt       time.Time
	halfOpenProbes int
	lastFailure    time.Time
}

// CircuitBreaker manages per-source circuits.
//
// State transitions:
//   - Closed -> Open: after FailureThreshold consecutive failures
//   - Open -> Half-Open: after Cooldown
//   - Half-Open -> Closed: probe request succeeds
//   - Half-Open -> Open: probe request fails
//
// Thread-safe: all methods can be called concurrently.
type CircuitBreaker struct {
	config   CircuitBreakerConfig
	mu       sync.RWMutex
	circuits map[string]*sourceCircuit
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config:   config,
		circuits: make(map[string]*sourceCircuit),
	}
}

// Allow checks if a request to the source is allowed. Returns nil when the
// request should proceed, or a CircuitOpenError when the circuit is open.
func (cb *CircuitBreaker) Allow(source string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.getOrCreate(source)

	switch circuit.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(circuit.openedAt) >= cb.config.Cooldown {
			circuit.state = StateHalfOpen
			circuit.halfOpenProbes = 1
			return nil
		}
		return &CircuitOpenError{
			Source:      source,
			OpenedAt:    circuit.openedAt,
			LastFailure: circuit.lastFailure,
			RetryAfter:  circuit.openedAt.Add(cb.config.Cooldown),
		}

	case StateHalfOpen:
		if circuit.halfOpenProbes < cb.config.HalfOpenMaxRequests {
			circuit.halfOpenProbes++
			return nil
		}
		return &CircuitOpenError{
			Source:      source,
			OpenedAt:    circuit.openedAt,
			LastFailure: circuit.lastFailure,
			RetryAfter:  circuit.openedAt.Add(cb.config.Cooldown),
		}

	default:
		return nil
	}
}

// RecordSuccess records a successful request, closing a half-open circuit or
// resetting the failure counter.
func (cb *CircuitBreaker) RecordSuccess(source string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.getOrCreate(source)
	circuit.state = StateClosed
	circuit.failures = 0
	circuit.halfOpenProbes = 0
}

// RecordFailure records a failed request, opening the circuit when the
// consecutive-failure threshold is reached or the half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(source string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	circuit := cb.getOrCreate(source)
	circuit.lastFailure = time.Now()

	switch circuit.state {
	case StateClosed:
		circuit.failures++
		if circuit.failures >= cb.config.FailureThreshold {
			circuit.state = StateOpen
			circuit.openedAt = time.Now()
		}

	case StateHalfOpen:
		circuit.state = StateOpen
		circuit.openedAt = time.Now()
		circuit.failures = cb.config.FailureThreshold
		circuit.halfOpenProbes = 0

	case StateOpen:
		// Already open; the counter stays at threshold.
	}
}

// State returns the current state of the circuit for the given source,
// accounting for cooldown expiry.
func (cb *CircuitBreaker) State(source string) CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	circuit, exists := cb.circuits[source]
	if !exists {
		return StateClosed
	}
	if circuit.state == StateOpen && time.Since(circuit.openedAt) >= cb.config.Cooldown {
		// The actual transition happens in Allow.
		return StateHalfOpen
	}
	return circuit.state
}

// Reset resets the circuit for the given source to Closed state.
func (cb *CircuitBreaker) Reset(source string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if circuit, exists := cb.circuits[source]; exists {
		circuit.state = StateClosed
		circuit.failures = 0
		circuit.halfOpenProbes = 0
	}
}

// getOrCreate must be called with mu held.
func (cb *CircuitBreaker) getOrCreate(source string) *sourceCircuit {
	circuit, exists := cb.circuits[source]
	if !exists {
		circuit = &sourceCircuit{state: StateClosed}
		cb.circuits[source] = circuit
	}
	return circuit
}

// CircuitOpenError is returned when a circuit is open and requests are blocked.
type CircuitOpenError struct {
	Source string

	// OpenedAt is when the circuit tripped; LastFailure is the most recent
	// failure recorded for the source.
	OpenedAt    time.Time
	LastFailure time.Time

	RetryAfter time.Time
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for source %s (opened at %s, retry after %s)",
		e.Source, e.OpenedAt.Format(time.RFC3339), e.RetryAfter.Format(time.RFC3339))
}
