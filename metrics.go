package tradewatch

import "time"

// Metric names recorded by the monitoring engine
const (
	MetricRunsTotal       = "runs_total"
	MetricRunsContended   = "runs_contended_total"
	MetricRunDuration     = "run_duration_seconds"
	MetricDetectorCalls   = "detector_calls_total"
	MetricDetectorRetries = "detector_retries_total"
	MetricDetectorErrors  = "detector_errors_total"
	MetricFeedsCreated    = "feeds_created_total"
	MetricDedupSkips      = "dedup_skips_total"
	MetricInactiveSkips   = "inactive_skips_total"
	MetricEnqueuedTasks   = "enqueued_tasks_total"
	MetricEnqueueFailures = "enqueue_failures_total"
	MetricWorkersInFlight = "workers_in_flight"
	MetricPersistFailures = "persist_failures_total"
)

// Metrics provides observability for monitoring operations
type Metrics interface {
	// Increment increases a counter by 1
	Increment(name string, tags ...string)

	// Gauge sets an absolute value
	Gauge(name string, value float64, tags ...string)

	// Timing records a duration
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                      {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)           {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

// InMemoryMetrics stores metrics in memory for testing
type InMemoryMetrics struct {
	Counters map[string]int
	Gauges   map[string]float64
	Timings  map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters: make(map[string]int),
		Gauges:   make(map[string]float64),
		Timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.Timings[name] = append(m.Timings[name], duration)
}
