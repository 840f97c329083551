// Package ratelimit provides per-platform throughput control: a token bucket
// for short-term pacing, daily request ceilings, and a circuit breaker that
// stops hammering a platform that is actively failing or blocking.
package ratelimit

import (
	"log"
	"sync"
	"time"
)

// CircuitState is the state of a platform's circuit breaker.
type CircuitState string

const (
	// CircuitClosed means normal operation.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen means requests are rejected until the cooldown elapses.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen means a probe request is allowed to test recovery.
	CircuitHalfOpen CircuitState = "half_open"
)

const (
	// defaultFailureThreshold is the consecutive-failure count that opens a circuit.
	defaultFailureThreshold = 5
	// defaultBreakerCooldown is how long an open circuit rejects before probing.
	defaultBreakerCooldown = 5 * time.Minute
	// successesToClose is the consecutive successes needed in half-open to close.
	successesToClose = 3
)

// CircuitBreaker tracks consecutive failures for one platform and gates
// requests once the failure threshold is crossed. Transitions: closed→open
// after threshold failures, open→half_open once the cooldown elapses,
// half_open→closed after three consecutive successes, and any half-open
// failure reopens the circuit immediately.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitState
	failures         int
	successCount     int
	lastFailure      time.Time
	failureThreshold int
	cooldown         time.Duration

	now func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Zero values for threshold or
// cooldown select the defaults.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// CanExecute reports whether a request may proceed. An open circuit whose
// cooldown has elapsed transitions to half-open and admits the probe.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) > cb.cooldown {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			log.Printf("[CircuitBreaker] entering half-open state")
			return true
		}
		return false
	}
	return true
}

// RecordSuccess resets the failure counter; in half-open it counts toward
// closing the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0

	if cb.state == CircuitHalfOpen {
		cb.successCount++
		if cb.successCount >= successesToClose {
			cb.state = CircuitClosed
			log.Printf("[CircuitBreaker] circuit closed - recovered")
		}
		return
	}
	cb.state = CircuitClosed
}

// RecordFailure increments the failure counter; it opens the circuit at the
// threshold, or immediately when a half-open probe fails.
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		log.Printf("[CircuitBreaker] failure in half-open, opening circuit: %s", reason)
		return
	}
	if cb.failures >= cb.failureThreshold {
		cb.state = CircuitOpen
		log.Printf("[CircuitBreaker] circuit opened after %d failures", cb.failures)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
