package tradewatch

import (
	"context"
	"math/rand"
	"time"
)

// Retry runs op up to policy.MaxAttempts times, sleeping between
// attempts with backoff and jitter. Only errors the retriable
// predicate accepts are retried; anything else (and the final
// attempt's error) surfaces to the caller immediately.
//
// The sleep is context-aware: cancellation during backoff returns
// ctx.Err() without another attempt.
func Retry(ctx context.Context, policy RetryPolicy, retriable func(error) bool, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, policy, attempt-1); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retriable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// sleepBackoff waits out the backoff for the given completed attempt
// index (0 = after the first attempt).
func sleepBackoff(ctx context.Context, policy RetryPolicy, attempt int) error {
	backoff := policy.MinBackoff
	for i := 0; i < attempt; i++ {
		backoff *= time.Duration(policy.Multiplier)
		if backoff >= policy.MaxBackoff {
			break
		}
	}

	if policy.JitterPercent > 0 {
		jitterRange := float64(policy.MaxBackoff-backoff) * policy.JitterPercent
		if jitterRange > 0 {
			backoff += time.Duration(rand.Float64() * jitterRange)
		}
	}
	if backoff > policy.MaxBackoff {
		backoff = policy.MaxBackoff
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
