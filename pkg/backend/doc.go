// Package backend implements the resilient HTTP client used for every
// outbound call to an inference backend.
//
// Each backend name gets an independent circuit breaker
// (closed/open/half-open). Only connection-level faults count toward
// opening a circuit and only they are retried; an HTTP error status means
// the backend is reachable and resets the failure counter. Timeouts are
// selected per backend timeout class and act as hard deadlines.
package backend
