package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyFinished is returned when claiming a job that reached a terminal status
	ErrJobAlreadyFinished = errors.New("job already in a terminal status")

	// ErrActiveJobExists is returned when a tenant already has a PENDING or PROCESSING job
	ErrActiveJobExists = errors.New("tenant already has an active job")

	// ErrQuotaExceeded is returned when a tenant's optimization quota is exhausted
	ErrQuotaExceeded = errors.New("optimization quota exceeded")

	// ErrEntryNotFoundOrReverted is returned when a revert targets a missing or already-reverted entry
	ErrEntryNotFoundOrReverted = errors.New("log entry not found or already reverted")

	// ErrNoEligibleEntries is returned when a job revert finds nothing to revert
	ErrNoEligibleEntries = errors.New("no eligible log entries to revert")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
