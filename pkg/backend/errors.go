package backend

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// connectionFault marks errors that count as connection-level faults for
// retry and circuit breaker purposes. HTTP error statuses never implement
// it: a backend that answers, even with a 5xx, is reachable.
type connectionFault interface {
	connectionFault()
}

// IsConnectionFault reports whether err is classified as a connection-level
// fault (connect refused, DNS failure, connect/request timeout).
func IsConnectionFault(err error) bool {
	var cf connectionFault
	return errors.As(err, &cf)
}

// ConnectionError represents a connection-level failure reaching a backend.
type ConnectionError struct {
	// Backend is the name of the backend that could not be reached.
	Backend string

	// Attempts is how many attempts were made for the logical call.
	Attempts int

	// Cause is the underlying transport error.
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend %q unreachable after %d attempt(s): %v", e.Backend, e.Attempts, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func (e *ConnectionError) connectionFault() {}

// DeadlineError represents a per-call timeout. It is classified as a
// connection-level fault: a backend that cannot answer within its timeout
// class is treated the same as one that cannot be reached.
type DeadlineError struct {
	// Backend is the name of the backend where the timeout occurred.
	Backend string

	// Timeout is the deadline that elapsed.
	Timeout time.Duration
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("backend %q did not respond within %s", e.Backend, e.Timeout)
}

func (e *DeadlineError) connectionFault() {}

// CircuitOpenError is returned immediately, without a network attempt,
// while a backend's circuit is open.
type CircuitOpenError struct {
	// Backend is the name of the backend whose circuit is open.
	Backend string

	// RetryIn is the remaining cooldown before a probe is allowed.
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for backend %q (retry in %s)", e.Backend, e.RetryIn.Round(time.Second))
}

// UpstreamError represents a reachable backend returning an error status or
// an unexpected response shape. It is not retried and does not count toward
// the circuit breaker.
type UpstreamError struct {
	// Backend is the name of the backend that returned the error.
	Backend string

	// StatusCode is the upstream HTTP status (0 when the envelope, not the
	// status, was the problem).
	StatusCode int

	// Message describes the failure.
	Message string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %q error (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %q error: %s", e.Backend, e.Message)
}

// HTTPStatus maps a client error to the status code the gateway surfaces:
// 503 for connection faults and open circuits, 504 for deadlines, 502 for
// upstream errors, 500 otherwise.
func HTTPStatus(err error) int {
	var (
		deadline *DeadlineError
		open     *CircuitOpenError
		conn     *ConnectionError
		upstream *UpstreamError
	)
	switch {
	case errors.As(err, &deadline):
		return http.StatusGatewayTimeout
	case errors.As(err, &open), errors.As(err, &conn):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
