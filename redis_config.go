package tradewatch

import (
	"os"

	"github.com/redis/go-redis/v9"
)

// RedisOptions returns redis.Options populated from standard environment variables.
//
// Environment variables read (with defaults):
//   - REDIS_ADDR (default: "localhost:6379")
//   - REDIS_PASSWORD (default: "")
//   - REDIS_DB (default: 0)
//
// The pool is sized to the worker concurrency limit so parallel
// enqueues never queue behind each other waiting for a connection.
func RedisOptions(concurrencyLimit int) *redis.Options {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvAsInt("REDIS_DB", 0),
	}

	// go-redis defaults to 10 connections per CPU; only grow, never shrink.
	if concurrencyLimit > 10 {
		opts.PoolSize = concurrencyLimit
	}

	return opts
}
