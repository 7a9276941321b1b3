package tradewatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when the caller still owns it
// (compare-and-delete on the acquire token).
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// RunLock is the Redis-backed single-flight lock gating monitoring
// runs. At most one runner cluster-wide proceeds past Acquire at any
// instant; the TTL guarantees eventual release if a runner crashes.
type RunLock struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRunLock creates a run lock on the given key.
// The TTL must exceed the P99 total run duration; there is no lease
// renewal, so a run outliving the TTL risks a second concurrent runner.
func NewRunLock(client *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{
		redis: client,
		key:   key,
		ttl:   ttl,
	}
}

// Acquire attempts a non-blocking lock acquisition via SET NX EX.
// On success it returns a unique holder token; if another runner holds
// the lock it returns ok=false with no error (contention is a benign
// "already running" state, not a failure).
func (l *RunLock) Acquire(ctx context.Context) (token string, ok bool, err error) {
	token = NewID()

	ok, err = l.redis.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release releases the lock only if the given token still holds it.
// Idempotent: releasing an expired or stolen lock is a no-op.
// Uses a background context so release survives caller cancellation.
func (l *RunLock) Release(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := l.redis.Eval(ctx, releaseScript, []string{l.key}, token).Result()
	if err != nil {
		return WithContext(err, map[string]interface{}{
			"key": l.key,
		})
	}
	return nil
}

// Held reports whether any runner currently holds the lock
func (l *RunLock) Held(ctx context.Context) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
