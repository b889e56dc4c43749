package backend

import (
	"sync"
	"time"
)

// CircuitStatus is the state of one backend's circuit breaker.
type CircuitStatus string

const (
	// CircuitClosed means calls flow normally.
	CircuitClosed CircuitStatus = "closed"

	// CircuitOpen means calls fail fast without a network attempt until
	// the cooldown elapses.
	CircuitOpen CircuitStatus = "open"

	// CircuitHalfOpen means exactly one probe call is allowed through to
	// test recovery.
	CircuitHalfOpen CircuitStatus = "half_open"
)

// CircuitState is a point-in-time snapshot of a breaker.
type CircuitState struct {
	Status              CircuitStatus `json:"status"`
	ConsecutiveFailures uint          `json:"consecutive_failures"`
	OpenedAt            *time.Time    `json:"opened_at,omitempty"`
}

// breaker is the per-backend circuit breaker. Failure means a
// connection-level fault; an HTTP error status from a reachable backend is
// recorded as a success and resets the counter. This is a deliberate policy
// choice carried over from the source system: a backend stuck returning
// 500s never trips the breaker.
type breaker struct {
	mu        sync.Mutex
	threshold uint
	cooldown  time.Duration
	now       func() time.Time

	status   CircuitStatus
	failures uint
	openedAt time.Time
	probing  bool
}

func newBreaker(threshold uint, cooldown time.Duration, now func() time.Time) *breaker {
	if now == nil {
		now = time.Now
	}
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		status:    CircuitClosed,
	}
}

// allow reports whether a call may proceed. While open it returns the
// remaining cooldown; once the cooldown has elapsed the breaker moves to
// half-open and admits a single probe.
func (b *breaker) allow() (retryIn time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.status {
	case CircuitClosed:
		return 0, true
	case CircuitOpen:
		elapsed := b.now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			return b.cooldown - elapsed, false
		}
		b.status = CircuitHalfOpen
		b.probing = true
		return 0, true
	default: // half-open
		if b.probing {
			return b.cooldown, false
		}
		b.probing = true
		return 0, true
	}
}

// recordSuccess resets the failure count and closes the circuit. Success is
// any completed exchange, regardless of HTTP status.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.status = CircuitClosed
	b.probing = false
}

// recordFailure counts a connection-level fault. A failed half-open probe
// reopens the circuit immediately; otherwise the circuit opens once the
// consecutive failure threshold is reached.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.status == CircuitHalfOpen || b.failures >= b.threshold {
		b.status = CircuitOpen
		b.openedAt = b.now()
		b.probing = false
	}
}

// abortProbe returns an unresolved half-open probe slot. A probe can end
// without a verdict (caller cancellation, request build failure); the
// circuit reverts to open with its original timer so the next call may
// probe again instead of finding the slot held forever.
func (b *breaker) abortProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == CircuitHalfOpen && b.probing {
		b.status = CircuitOpen
		b.probing = false
	}
}

// snapshot returns the current circuit state.
func (b *breaker) snapshot() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := CircuitState{
		Status:              b.status,
		ConsecutiveFailures: b.failures,
	}
	if b.status != CircuitClosed {
		openedAt := b.openedAt
		state.OpenedAt = &openedAt
	}
	return state
}
