package models

import (
	"fmt"
	"time"
)

// ValidationError represents a profile or request field rejected before any
// backend call.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string

	// Message describes what is invalid about it.
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %q: %s", e.Field, e.Message)
}

// NotFoundError represents a reference to an unknown model.
type NotFoundError struct {
	Model string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q not found", e.Model)
}

// ReconfigureTimeoutError means a runtime patch was applied but the new
// runtime instance did not become ready within the bounded wait. The model
// is left in whatever state the backing runtime reports.
type ReconfigureTimeoutError struct {
	Timeout time.Duration
}

func (e *ReconfigureTimeoutError) Error() string {
	return fmt.Sprintf("runtime did not become ready within %s after reconfigure", e.Timeout)
}
