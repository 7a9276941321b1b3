package tradewatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// Coordinator drives one monitoring run: single-flight lock, bounded
// fan-out over every active bookmark, aggregation, release. Per-
// bookmark failures are contained by the workers; the only errors the
// caller sees are Redis being down at start and bookmark loading.
type Coordinator struct {
	redis  *redis.Client
	lock   *RunLock
	source BookmarkSource
	worker *Worker
	cfg    Config

	logger  Logger
	metrics Metrics
}

// NewCoordinator wires a run coordinator
func NewCoordinator(client *redis.Client, source BookmarkSource, worker *Worker, cfg Config, logger Logger, metrics Metrics) *Coordinator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &Coordinator{
		redis:   client,
		lock:    NewRunLock(client, cfg.LockKey, cfg.LockTTL),
		source:  source,
		worker:  worker,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Run executes one monitoring pass and always returns a populated
// summary. A second caller while a run is in flight gets
// already_running without touching the database or the detector.
//
// The lock is released on every exit path; if the caller's context is
// cancelled mid-run, outstanding workers wind down at their next
// cancellation point and the release still happens.
func (c *Coordinator) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{
		Status:     RunStatusServiceUnavailable,
		LockStatus: LockNotAcquired,
	}

	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.logger.Error("redis unavailable, refusing to start run", "error", err)
		return summary, WithContext(ErrServiceUnavailable, map[string]interface{}{
			"cause": err.Error(),
		})
	}

	token, ok, err := c.lock.Acquire(ctx)
	if err != nil {
		c.logger.Error("lock acquisition failed", "error", err)
		return summary, WithContext(ErrServiceUnavailable, map[string]interface{}{
			"cause": err.Error(),
		})
	}
	if !ok {
		c.metrics.Increment(MetricRunsContended)
		c.logger.Info("monitoring run already in progress, skipping")
		summary.Status = RunStatusAlreadyRunning
		return summary, nil
	}

	started := time.Now()
	c.metrics.Increment(MetricRunsTotal)
	summary.LockStatus = LockAcquired

	defer func() {
		if err := c.lock.Release(token); err != nil {
			// Best effort: the TTL will reap the key.
			c.logger.Warn("failed to release run lock", "error", err)
		}
		c.metrics.Timing(MetricRunDuration, time.Since(started))
	}()

	bookmarks, err := c.source.ListActiveBookmarks(ctx)
	if err != nil {
		c.logger.Error("failed to load active bookmarks", "error", err)
		return summary, fmt.Errorf("failed to load active bookmarks: %w", err)
	}

	summary.Status = RunStatusSuccess
	summary.MonitoredBookmarks = len(bookmarks)

	if len(bookmarks) == 0 {
		c.logger.Info("no active bookmarks to monitor")
		return summary, nil
	}

	c.logger.Info("monitoring run started",
		"bookmarks", len(bookmarks),
		"concurrency_limit", c.cfg.ConcurrencyLimit,
		"rpm_limit", c.cfg.RPMLimit,
	)

	sem := semaphore.NewWeighted(int64(c.cfg.ConcurrencyLimit))
	var updatesFound atomic.Int64
	var wg sync.WaitGroup

	for i := range bookmarks {
		b := &bookmarks[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("worker panicked",
						"bookmark_id", b.ID,
						"panic", r,
						"stack", string(debug.Stack()),
					)
				}
			}()

			if c.worker.Process(ctx, sem, b) {
				updatesFound.Add(1)
			}
		}()
	}
	wg.Wait()

	summary.UpdatesFound = int(updatesFound.Load())
	c.logger.Info("monitoring run finished",
		"monitored", summary.MonitoredBookmarks,
		"updates_found", summary.UpdatesFound,
		"elapsed", time.Since(started).String(),
	)

	return summary, nil
}
