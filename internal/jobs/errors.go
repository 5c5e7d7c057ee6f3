package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no job record exists for the id.
	ErrNotFound = errors.New("job not found")
	// ErrRetryNotAllowed rejects retrying a job that is not in failed status.
	ErrRetryNotAllowed = errors.New("retry not allowed")
	// ErrMaxRetriesExceeded rejects retrying a job with no retry budget left.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	// ErrCancelNotAllowed rejects cancelling a job that already finished.
	ErrCancelNotAllowed = errors.New("cancel not allowed")
)

// ValidationError rejects a request before any side effect happens.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}
