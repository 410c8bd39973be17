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

	"github.com/spotmeet/spotmeet/internal/cache/redisstore"
	"github.com/spotmeet/spotmeet/internal/chat"
	"github.com/spotmeet/spotmeet/internal/config"
	"github.com/spotmeet/spotmeet/internal/health"
	"github.com/spotmeet/spotmeet/internal/logger"
	"github.com/spotmeet/spotmeet/internal/observability"
	"github.com/spotmeet/spotmeet/internal/server"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole, Component: "chatrelay"}, os.Stdout)
	log := logger.NewSlog(&zl)
	log.Info("starting chat relay", "admin_addr", cfg.AdminAddr, "version", Version)
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rs, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = rs.Close() }()

	relay := chat.NewRelay(cfg.Kafka, log, rs, cfg.ChatChannelPrefix)

	admin := chi.NewRouter()
	admin.Get("/healthz", health.Liveness())
	admin.Method(http.MethodGet, "/metrics", promhttp.Handler())

	errCh := make(chan error, 2)
	go func() { errCh <- relay.Start(ctx) }()
	go func() { errCh <- server.Run(ctx, log, cfg.AdminAddr, admin) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	log.Info("chat relay stopped")
	return firstErr
}
