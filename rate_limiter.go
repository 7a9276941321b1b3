package tradewatch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// UpstreamGate suspends callers until a unit of upstream capacity is
// available. Shared by every worker in a run; only the detector call is
// gated, never persistence or Redis.
type UpstreamGate interface {
	Acquire(ctx context.Context) error
}

// RPMLimiter is a token bucket emitting at most rpm detector calls per
// minute with burst 1, so calls are spaced evenly rather than clumped
// at window boundaries. Safe for concurrent waiters; wakeup order is
// not FIFO but waiters cannot starve under steady arrival.
type RPMLimiter struct {
	limiter *rate.Limiter
}

// NewRPMLimiter creates a process-wide limiter for the given
// requests-per-minute cap
func NewRPMLimiter(rpm int) *RPMLimiter {
	if rpm < 1 {
		rpm = 1
	}
	return &RPMLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// Acquire blocks until capacity is available or the context is done
func (l *RPMLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
