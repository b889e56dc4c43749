package voices

import "fmt"

// ValidationError represents rejected reference input (bad file type,
// count, or size) caught before anything is persisted or uploaded.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
}

// NotFoundError represents a reference to an unknown voice.
type NotFoundError struct {
	VoiceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("voice %q not found", e.VoiceID)
}
