package ingest

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidMaxAttempts is returned when retryWithBackoff is misconfigured.
var ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

// permanentError marks an operation error as non-retryable.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent wraps err so retryWithBackoff stops immediately instead of
// burning the remaining attempts.
func permanent(err error) error { return &permanentError{err: err} }

// retryWithBackoff retries an operation with exponential backoff:
// baseDelay * 2^(attempt-1) between attempts. onRetry is called before each
// re-attempt (attempt 2 and later). Returns the error from the last attempt
// if all attempts fail.
func retryWithBackoff(
	ctx context.Context,
	operation func() error,
	maxAttempts int,
	baseDelay time.Duration,
	onRetry func(attempt int, err error),
) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt+1, lastErr)
		}

		delay := baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
