package tradewatch

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationEnqueuer hands notification work to the out-of-process
// delivery worker via Redis. One task per enabled channel: a detail
// hash keyed by a fresh uuid, then the uuid LPUSHed onto that channel's
// queue. The hash is always written before the push, so a uuid visible
// on the queue always has its detail present.
type NotificationEnqueuer struct {
	redis        *redis.Client
	queuePrefix  string
	detailPrefix string
	channels     ChannelPolicy
	breaker      *CircuitBreaker
	logger       Logger
	metrics      Metrics
}

// NewNotificationEnqueuer creates an enqueuer with the default
// bookmark-flag channel policy
func NewNotificationEnqueuer(client *redis.Client, cfg Config, logger Logger, metrics Metrics) *NotificationEnqueuer {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &NotificationEnqueuer{
		redis:        client,
		queuePrefix:  cfg.QueueKeyPrefix,
		detailPrefix: cfg.DetailKeyPrefix,
		channels:     BookmarkChannels,
		breaker:      NewCircuitBreaker(5, 30*time.Second),
		logger:       logger,
		metrics:      metrics,
	}
}

// WithChannelPolicy overrides how findings fan out to channels.
// Callers with a user-level preference store resolve it here.
func (e *NotificationEnqueuer) WithChannelPolicy(policy ChannelPolicy) *NotificationEnqueuer {
	e.channels = policy
	return e
}

// Enqueue pushes one notification task per enabled channel for a
// committed feed row. Called strictly after the feed's transaction has
// committed.
//
// A Redis failure here is critical: the feed exists but its
// notification may never be sent. The failure is logged at error
// severity with the feed id so operations can recover; the feed row is
// deliberately left in place (it is user-visible, and a re-run skips it
// by dedup).
func (e *NotificationEnqueuer) Enqueue(ctx context.Context, b *Bookmark, feed *UpdateFeed) error {
	for _, ch := range e.channels(b) {
		if err := e.enqueueOne(ctx, feed, ch); err != nil {
			e.metrics.Increment(MetricEnqueueFailures)
			e.logger.Error("notification task lost after feed commit",
				"critical", true,
				"user_id", feed.UserID,
				"update_feed_id", feed.ID,
				"channel", string(ch),
				"error", err,
			)
			return WithContext(ErrEnqueueFailed, map[string]interface{}{
				"update_feed_id": feed.ID,
				"channel":        string(ch),
				"cause":          err.Error(),
			})
		}
		e.metrics.Increment(MetricEnqueuedTasks)
	}
	return nil
}

func (e *NotificationEnqueuer) enqueueOne(ctx context.Context, feed *UpdateFeed, ch Channel) error {
	taskID := NewID()
	detailKey := e.detailPrefix + taskID
	queueKey := e.queuePrefix + string(ch)

	return e.breaker.Execute(ctx, func() error {
		// Detail hash must exist before the uuid is visible on the queue.
		err := e.redis.HSet(ctx, detailKey, map[string]interface{}{
			"user_id":        strconv.FormatInt(feed.UserID, 10),
			"message":        feed.Title,
			"type":           string(ch),
			"update_feed_id": strconv.FormatInt(feed.ID, 10),
			"created_at":     feed.CreatedAt.UTC().Format(time.RFC3339),
		}).Err()
		if err != nil {
			return err
		}

		return e.redis.LPush(ctx, queueKey, taskID).Err()
	})
}
