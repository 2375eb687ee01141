// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jllopis/telos/pkg/errors"
)

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState string

const (
	// StateClosed means the circuit breaker is working normally.
	StateClosed CircuitBreakerState = "closed"

	// StateOpen means the circuit breaker is blocking calls.
	StateOpen CircuitBreakerState = "open"

	// StateHalfOpen means the circuit breaker is testing if service recovered.
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of successes in half-open before closing.
	SuccessThreshold int

	// Timeout is how long to wait before trying half-open state.
	Timeout time.Duration

	// Name is the circuit breaker identifier for logging/metrics.
	Name string

	// OnStateChange, if set, is called after every state transition.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// CircuitBreaker prevents hammering a failing collaborator. After
// FailureThreshold consecutive failures it rejects calls outright until
// Timeout elapses, then lets probes through in half-open state.
type CircuitBreaker struct {
	config       CircuitBreakerConfig
	state        CircuitBreakerState
	failures     int
	successes    int
	lastFailTime time.Time
	mu           sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker with the given config.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "circuit_breaker"
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Call executes fn if the circuit breaker allows, tracking success/failure.
// A rejected call fails with a recoverable COLLABORATOR_UNAVAILABLE error.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func() error) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()

	if cb.state == StateOpen {
		return errors.New(errors.CodeCollaboratorUnavailable, "circuit breaker open", nil).
			WithContext("breaker", cb.config.Name).
			WithRecoverable(true)
	}

	err := fn()

	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()

		if cb.failures >= cb.config.FailureThreshold && cb.state != StateOpen {
			cb.transition(StateOpen)
		}
	} else {
		switch cb.state {
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
			}
		case StateClosed:
			cb.failures = 0
		}
	}

	return err
}

// maybeHalfOpen transitions open→half-open once the cool-down elapsed.
// Must be called under lock.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == StateOpen && time.Since(cb.lastFailTime) > cb.config.Timeout {
		cb.transition(StateHalfOpen)
	}
}

// transition switches state and resets counters. Must be called under lock.
func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if cb.config.OnStateChange != nil && from != to {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
}
