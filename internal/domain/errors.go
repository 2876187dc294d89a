package domain

import (
	"errors"
	"fmt"
	"time"
)

// Boundary errors. Validation and authorization failures are never retried.
var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthenticated indicates no resolved tenant or actor.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates a tenant/job mismatch or missing tenant access.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates a missing tenant, document, chunk or job.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates the caller exceeded its request window.
	ErrRateLimited = errors.New("rate limited")
)

// Provider errors are retryable by the job queue.
var (
	ErrProvider = errors.New("provider error")

	// ErrUnsupportedFormat is returned for document kinds other than pdf and docx.
	ErrUnsupportedFormat = errors.New("unsupported format")

	ErrExtractionFailed  = fmt.Errorf("%w: extraction failed", ErrProvider)
	ErrEmbeddingProvider = fmt.Errorf("%w: embedding provider", ErrProvider)
)

// RateLimitedError carries the limiter decision so callers can surface
// remaining quota and retry hints.
type RateLimitedError struct {
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// Validationf builds an ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
