package ops

import (
	"sync"
	"time"
)

// CircuitBreaker stops the tracker from hammering an unhealthy audit sink.
// After threshold consecutive failures it opens for cooldown; the first call
// after cooldown is let through as a probe.
type CircuitBreaker struct {
	mu  sync.Mutex
	now func() time.Time

	threshold int
	cooldown  time.Duration

	failures  int
	openUntil time.Time
	open      bool
}

// NewCircuitBreaker creates a circuit breaker. Non-positive arguments fall
// back to 5 failures and one minute.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a write may be attempted.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return true
	}
	if cb.now().After(cb.openUntil) {
		cb.open = false
		cb.failures = cb.threshold - 1 // one more failure reopens
		return true
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.open = true
		cb.openUntil = cb.now().Add(cb.cooldown)
	}
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}
