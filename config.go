package tradewatch

import (
	"os"
	"strconv"
	"time"
)

// Configuration defaults for monitoring runs
const (
	DefaultLockKey          = "monitoring:job:lock"
	DefaultLockTTL          = 300 * time.Second
	DefaultConcurrencyLimit = 5
	DefaultRPMLimit         = 10
	DefaultQueueKeyPrefix   = "daily_notification:queue:"
	DefaultDetailKeyPrefix  = "daily_notification:detail:"

	// Detector retry configuration
	DefaultMaxAttempts       = 3
	DefaultMinBackoff        = 2 * time.Second
	DefaultMaxBackoff        = 10 * time.Second
	DefaultBackoffMultiplier = 1
	DefaultJitterPercent     = 0.5 // 50% jitter to avoid thundering herd
)

// Config holds the monitoring engine configuration
type Config struct {
	// LockKey is the Redis key for the cluster-wide single-flight lock
	LockKey string

	// LockTTL bounds how long the lock survives a crashed runner.
	// Must exceed the P99 total run duration; there is no lease renewal.
	LockTTL time.Duration

	// ConcurrencyLimit caps in-flight per-bookmark workers
	ConcurrencyLimit int

	// RPMLimit caps upstream detector requests per minute, shared
	// across all workers
	RPMLimit int

	// QueueKeyPrefix and DetailKeyPrefix are the Redis key prefixes for
	// notification task queues and detail hashes
	QueueKeyPrefix  string
	DetailKeyPrefix string

	// Retry governs the detector retry policy
	Retry RetryPolicy
}

// RetryPolicy holds configuration for retrying the detector call.
//
// The default multiplier of 1 keeps each backoff in [MinBackoff,
// MinBackoff+jitter] capped at MaxBackoff; set Multiplier to 2 for a
// true exponential shape.
type RetryPolicy struct {
	MaxAttempts   int
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	Multiplier    int
	JitterPercent float64
}

// DefaultRetryPolicy returns the default detector retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		MinBackoff:    DefaultMinBackoff,
		MaxBackoff:    DefaultMaxBackoff,
		Multiplier:    DefaultBackoffMultiplier,
		JitterPercent: DefaultJitterPercent,
	}
}

// DefaultConfig returns the default monitoring configuration
func DefaultConfig() Config {
	return Config{
		LockKey:          DefaultLockKey,
		LockTTL:          DefaultLockTTL,
		ConcurrencyLimit: DefaultConcurrencyLimit,
		RPMLimit:         DefaultRPMLimit,
		QueueKeyPrefix:   DefaultQueueKeyPrefix,
		DetailKeyPrefix:  DefaultDetailKeyPrefix,
		Retry:            DefaultRetryPolicy(),
	}
}

// ConfigFromEnv returns a Config populated from environment variables,
// falling back to defaults for anything unset:
//
//   - MONITORING_JOB_LOCK_KEY
//   - MONITORING_JOB_LOCK_TIMEOUT (seconds)
//   - MONITORING_CONCURRENT_REQUESTS_LIMIT
//   - MONITORING_RPM_LIMIT
//   - MONITORING_NOTIFICATION_QUEUE_KEY_PREFIX
//   - MONITORING_NOTIFICATION_DETAIL_KEY_PREFIX
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("MONITORING_JOB_LOCK_KEY"); v != "" {
		cfg.LockKey = v
	}
	if v := getEnvAsInt("MONITORING_JOB_LOCK_TIMEOUT", 0); v > 0 {
		cfg.LockTTL = time.Duration(v) * time.Second
	}
	if v := getEnvAsInt("MONITORING_CONCURRENT_REQUESTS_LIMIT", 0); v > 0 {
		cfg.ConcurrencyLimit = v
	}
	if v := getEnvAsInt("MONITORING_RPM_LIMIT", 0); v > 0 {
		cfg.RPMLimit = v
	}
	if v := os.Getenv("MONITORING_NOTIFICATION_QUEUE_KEY_PREFIX"); v != "" {
		cfg.QueueKeyPrefix = v
	}
	if v := os.Getenv("MONITORING_NOTIFICATION_DETAIL_KEY_PREFIX"); v != "" {
		cfg.DetailKeyPrefix = v
	}

	return cfg
}

// Validate checks if the Config is valid
func (c Config) Validate() error {
	if c.LockKey == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "LockKey",
			"reason": "must not be empty",
		})
	}
	if c.LockTTL <= 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "LockTTL",
			"value":  c.LockTTL,
			"reason": "must be positive",
		})
	}
	if c.ConcurrencyLimit < 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "ConcurrencyLimit",
			"value":  c.ConcurrencyLimit,
			"reason": "must be >= 1",
		})
	}
	if c.RPMLimit < 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "RPMLimit",
			"value":  c.RPMLimit,
			"reason": "must be >= 1",
		})
	}
	if c.QueueKeyPrefix == "" || c.DetailKeyPrefix == "" {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "QueueKeyPrefix/DetailKeyPrefix",
			"reason": "must not be empty",
		})
	}
	return c.Retry.Validate()
}

// Validate checks if the RetryPolicy is valid
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "MaxAttempts",
			"value":  p.MaxAttempts,
			"reason": "must be >= 1",
		})
	}
	if p.MinBackoff <= 0 || p.MaxBackoff < p.MinBackoff {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "MinBackoff/MaxBackoff",
			"reason": "need 0 < MinBackoff <= MaxBackoff",
		})
	}
	if p.Multiplier < 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "Multiplier",
			"value":  p.Multiplier,
			"reason": "must be >= 1",
		})
	}
	if p.JitterPercent < 0 || p.JitterPercent > 1 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "JitterPercent",
			"value":  p.JitterPercent,
			"reason": "must be between 0 and 1",
		})
	}
	return nil
}

// getEnvAsInt reads an integer environment variable with a default fallback.
func getEnvAsInt(key string, defaultVal int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultVal
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultVal
	}

	return value
}
