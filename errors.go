package tradewatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// Coordinator errors
	ErrServiceUnavailable = errors.New("redis unavailable")
	ErrLockHeld           = errors.New("monitoring lock already held by another runner")

	// Detector errors, classified by the detector implementation
	ErrDetectorTimeout     = errors.New("detector call timed out")
	ErrDetectorRateLimited = errors.New("detector rate limited by upstream")
	ErrDetectorMalformed   = errors.New("detector returned malformed output")
	ErrDetectorInternal    = errors.New("detector internal error")

	// Persister soft aborts (expected paths, not failures)
	ErrDuplicateFinding = errors.New("finding already persisted for this bookmark")
	ErrBookmarkInactive = errors.New("bookmark no longer active")

	// Enqueue errors
	ErrEnqueueFailed = errors.New("notification enqueue failed after feed commit")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// Common error checking helpers

// IsRetryableDetectorError reports whether a detector error is transient
// and worth another attempt. Only timeouts and upstream rate limits
// qualify; malformed output and internal errors surface immediately.
func IsRetryableDetectorError(err error) bool {
	return errors.Is(err, ErrDetectorTimeout) ||
		errors.Is(err, ErrDetectorRateLimited)
}

// IsSoftAbort reports whether a persister error is one of the expected
// dedup/deactivation paths rather than a real failure.
func IsSoftAbort(err error) bool {
	return errors.Is(err, ErrDuplicateFinding) ||
		errors.Is(err, ErrBookmarkInactive)
}

// IsLockHeld checks if an error means another runner holds the job lock
func IsLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}
