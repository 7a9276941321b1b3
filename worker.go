package tradewatch

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Enqueuer hands notification work for a committed feed to the
// delivery worker
type Enqueuer interface {
	Enqueue(ctx context.Context, b *Bookmark, feed *UpdateFeed) error
}

// Worker processes one bookmark end to end: semaphore slot, rate-gated
// detector call with retries, then persist and enqueue when an update
// was found. All per-bookmark errors are contained here; the
// coordinator only ever sees a boolean.
type Worker struct {
	gate      UpstreamGate
	detector  UpdateDetector
	persister FindingPersister
	enqueuer  Enqueuer
	retry     RetryPolicy
	logger    Logger
	metrics   Metrics

	inFlight atomic.Int64
}

// NewWorker wires the per-bookmark pipeline
func NewWorker(gate UpstreamGate, detector UpdateDetector, persister FindingPersister, enqueuer Enqueuer, retry RetryPolicy, logger Logger, metrics Metrics) *Worker {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &Worker{
		gate:      gate,
		detector:  detector,
		persister: persister,
		enqueuer:  enqueuer,
		retry:     retry,
		logger:    logger,
		metrics:   metrics,
	}
}

// Process runs the pipeline for one bookmark under the run's shared
// semaphore. Returns true only when a novel update was persisted and
// every enabled channel's task was enqueued.
//
// Cancellation is honored at the semaphore wait, the rate-limit wait,
// and the detector call. Once a finding is being persisted, persistence
// and enqueue run to completion so no feed row commits without an
// enqueue attempt.
func (w *Worker) Process(ctx context.Context, sem *semaphore.Weighted, b *Bookmark) bool {
	if err := sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer sem.Release(1)

	w.metrics.Gauge(MetricWorkersInFlight, float64(w.inFlight.Add(1)))
	defer func() {
		w.metrics.Gauge(MetricWorkersInFlight, float64(w.inFlight.Add(-1)))
	}()

	det, err := w.detect(ctx, b)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			w.logger.Debug("detector call cancelled", "bookmark_id", b.ID)
		case errors.Is(err, ErrDetectorRateLimited):
			w.logger.Warn("detector rate limited after retries",
				"bookmark_id", b.ID,
				"target_value", b.TargetValue,
			)
		default:
			w.logger.Error("detector call failed",
				"bookmark_id", b.ID,
				"target_value", b.TargetValue,
				"error", err,
			)
		}
		return false
	}

	switch det.Status {
	case StatusNoUpdate:
		return false

	case StatusError:
		w.metrics.Increment(MetricDetectorErrors)
		w.logger.Warn("detector returned error status",
			"bookmark_id", b.ID,
			"target_value", b.TargetValue,
			"error_message", det.ErrorMessage,
		)
		return false

	case StatusUpdateFound:
		if det.Summary == "" {
			w.metrics.Increment(MetricDetectorErrors)
			w.logger.Warn("detector reported update without summary",
				"bookmark_id", b.ID,
				"target_value", b.TargetValue,
			)
			return false
		}
		return w.persistAndEnqueue(context.WithoutCancel(ctx), b, det.Summary)

	default:
		w.logger.Error("detector returned unknown status",
			"bookmark_id", b.ID,
			"status", string(det.Status),
		)
		return false
	}
}

// detect calls the detector through the rate limiter, retrying only
// transient error kinds. Each attempt re-enters the limiter.
func (w *Worker) detect(ctx context.Context, b *Bookmark) (Detection, error) {
	var det Detection
	attempts := 0

	err := Retry(ctx, w.retry, IsRetryableDetectorError, func(ctx context.Context) error {
		if err := w.gate.Acquire(ctx); err != nil {
			return err
		}

		attempts++
		w.metrics.Increment(MetricDetectorCalls)
		if attempts > 1 {
			w.metrics.Increment(MetricDetectorRetries)
		}

		d, err := w.detector.Detect(ctx, b.TargetValue)
		if err != nil {
			return err
		}
		det = d
		return nil
	})

	return det, err
}

func (w *Worker) persistAndEnqueue(ctx context.Context, b *Bookmark, summary string) bool {
	feed, err := w.persister.PersistFinding(ctx, b, summary)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateFinding):
			w.metrics.Increment(MetricDedupSkips)
			w.logger.Debug("finding already persisted, skipping",
				"bookmark_id", b.ID,
				"target_value", b.TargetValue,
			)
		case errors.Is(err, ErrBookmarkInactive):
			w.metrics.Increment(MetricInactiveSkips)
			w.logger.Debug("bookmark deactivated since load, skipping",
				"bookmark_id", b.ID,
			)
		default:
			w.metrics.Increment(MetricPersistFailures)
			w.logger.Error("failed to persist finding",
				"bookmark_id", b.ID,
				"target_value", b.TargetValue,
				"error", err,
			)
		}
		return false
	}

	w.metrics.Increment(MetricFeedsCreated)

	// Feed is durable from here; an enqueue failure is already logged
	// at critical severity by the enqueuer.
	if err := w.enqueuer.Enqueue(ctx, b, feed); err != nil {
		return false
	}
	return true
}
