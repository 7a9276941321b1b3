// tradewatch - bookmark-change monitoring engine
//
// Serves the "run monitoring now" trigger and Prometheus metrics.
// The heavy lifting lives in the tradewatch package; this binary only
// wires configuration, Postgres, Redis, the detector, and HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/GodsB1025/tradewatch"
)

func main() {
	var (
		addr = flag.String("addr", ":8080", "HTTP listen address")
		dev  = flag.Bool("dev", false, "Human-readable console logging")
	)
	flag.Parse()

	logger, err := newLogger(*dev)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := tradewatch.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Error("DATABASE_URL not set")
		os.Exit(1)
	}
	poolCfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Error("invalid DATABASE_URL", "error", err)
		os.Exit(1)
	}
	// One connection per worker plus the coordinator's listing query.
	if int(poolCfg.MaxConns) < cfg.ConcurrencyLimit+1 {
		poolCfg.MaxConns = int32(cfg.ConcurrencyLimit + 1)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(tradewatch.RedisOptions(cfg.ConcurrencyLimit))
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	metrics := tradewatch.NewPrometheusMetrics(registry)

	store := tradewatch.NewStore(pool, logger)
	enqueuer := tradewatch.NewNotificationEnqueuer(redisClient, cfg, logger, metrics)
	worker := tradewatch.NewWorker(
		tradewatch.NewRPMLimiter(cfg.RPMLimit),
		newDetector(),
		store,
		enqueuer,
		cfg.Retry,
		logger,
		metrics,
	)
	coordinator := tradewatch.NewCoordinator(redisClient, store, worker, cfg, logger, metrics)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/monitoring/run", runHandler(coordinator, logger))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("tradewatch starting",
		"addr", *addr,
		"lock_key", cfg.LockKey,
		"concurrency_limit", cfg.ConcurrencyLimit,
		"rpm_limit", cfg.RPMLimit,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(dev bool) (*tradewatch.ZapLogger, error) {
	if dev {
		return tradewatch.NewDevelopmentZapLogger()
	}
	return tradewatch.NewProductionZapLogger()
}

func runHandler(coordinator *tradewatch.Coordinator, logger tradewatch.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := coordinator.Run(r.Context())

		status := http.StatusOK
		switch {
		case errors.Is(err, tradewatch.ErrServiceUnavailable):
			status = http.StatusServiceUnavailable
		case err != nil:
			status = http.StatusInternalServerError
		case summary.Status == tradewatch.RunStatusAlreadyRunning:
			status = http.StatusConflict
		}
		if err != nil {
			logger.Error("monitoring run failed", "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(summary)
	}
}
