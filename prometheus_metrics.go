package tradewatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements the Metrics interface using Prometheus
type PrometheusMetrics struct {
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance.
// If registry is nil, uses the default Prometheus registry
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}

	pm := &PrometheusMetrics{
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
		registry:   registry,
	}

	pm.registerDefaultMetrics()
	return pm
}

func (p *PrometheusMetrics) registerDefaultMetrics() {
	counter := func(key, name, help string) {
		p.counters[key] = promauto.With(p.registry).NewCounter(prometheus.CounterOpts{
			Namespace: "tradewatch",
			Subsystem: "monitoring",
			Name:      name,
			Help:      help,
		})
	}

	counter(MetricRunsTotal, "runs_total", "Total number of monitoring runs started")
	counter(MetricRunsContended, "runs_contended_total", "Runs skipped because another runner held the lock")
	counter(MetricDetectorCalls, "detector_calls_total", "Total update-detector invocations")
	counter(MetricDetectorRetries, "detector_retries_total", "Detector invocations that were retries")
	counter(MetricDetectorErrors, "detector_errors_total", "Detector calls that ended in an error status")
	counter(MetricFeedsCreated, "feeds_created_total", "Update feed rows persisted")
	counter(MetricDedupSkips, "dedup_skips_total", "Findings skipped as duplicates")
	counter(MetricInactiveSkips, "inactive_skips_total", "Findings skipped because the bookmark was deactivated")
	counter(MetricEnqueuedTasks, "enqueued_tasks_total", "Notification tasks pushed to Redis")
	counter(MetricEnqueueFailures, "enqueue_failures_total", "Notification enqueue failures after feed commit")
	counter(MetricPersistFailures, "persist_failures_total", "Feed persistence failures")

	p.gauges[MetricWorkersInFlight] = promauto.With(p.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "tradewatch",
		Subsystem: "monitoring",
		Name:      "workers_in_flight",
		Help:      "Per-bookmark workers currently past the semaphore",
	})

	p.histograms[MetricRunDuration] = promauto.With(p.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradewatch",
		Subsystem: "monitoring",
		Name:      "run_duration_seconds",
		Help:      "Total monitoring run duration in seconds",
		Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})
}

func (p *PrometheusMetrics) Increment(name string, tags ...string) {
	if c, ok := p.counters[name]; ok {
		c.Inc()
	}
}

func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	if g, ok := p.gauges[name]; ok {
		g.Set(value)
	}
}

func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...string) {
	if h, ok := p.histograms[name]; ok {
		h.Observe(duration.Seconds())
	}
}
