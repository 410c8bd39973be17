package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spotmeet/spotmeet/internal/cache"
	"github.com/spotmeet/spotmeet/internal/cache/redisstore"
	"github.com/spotmeet/spotmeet/internal/config"
	"github.com/spotmeet/spotmeet/internal/health"
	"github.com/spotmeet/spotmeet/internal/invalidation"
	"github.com/spotmeet/spotmeet/internal/logger"
	"github.com/spotmeet/spotmeet/internal/observability"
	"github.com/spotmeet/spotmeet/internal/server"
)

var Version = "dev"

// consumerReadiness adapts the consumer's partition assignment to the
// health endpoint.
type consumerReadiness struct {
	c *invalidation.Consumer
}

func (r consumerReadiness) Readiness() (bool, string) {
	ready, partitions := r.c.Readiness()
	if !ready {
		return false, "no partitions assigned"
	}
	return true, fmt.Sprintf("partitions %v", partitions)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole, Component: "invalidator"}, os.Stdout)
	log := logger.NewSlog(&zl)
	log.Info("starting invalidator", "admin_addr", cfg.AdminAddr, "version", Version)
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rs, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = rs.Close() }()

	consumer := invalidation.NewConsumer(cfg.Kafka, log, cache.NewRedis(rs, cfg.CacheOpTimeout))

	admin := chi.NewRouter()
	admin.Get("/healthz", health.Liveness())
	admin.Get("/readyz", health.Readiness(consumerReadiness{consumer}))
	admin.Method(http.MethodGet, "/metrics", promhttp.Handler())

	errCh := make(chan error, 2)
	go func() { errCh <- consumer.Start(ctx) }()
	go func() { errCh <- server.Run(ctx, log, cfg.AdminAddr, admin) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	log.Info("invalidator stopped")
	return firstErr
}
