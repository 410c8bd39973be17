package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"

	"github.com/spotmeet/spotmeet/internal/cache"
	"github.com/spotmeet/spotmeet/internal/cache/redisstore"
	"github.com/spotmeet/spotmeet/internal/chat"
	"github.com/spotmeet/spotmeet/internal/config"
	"github.com/spotmeet/spotmeet/internal/invalidation"
	"github.com/spotmeet/spotmeet/internal/logger"
	"github.com/spotmeet/spotmeet/internal/observability"
	"github.com/spotmeet/spotmeet/internal/query"
	"github.com/spotmeet/spotmeet/internal/server"
	"github.com/spotmeet/spotmeet/internal/store"
	"github.com/spotmeet/spotmeet/internal/store/memstore"
	"github.com/spotmeet/spotmeet/internal/store/postgres"
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

	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole, Component: "server"}, os.Stdout)
	log := logger.NewSlog(&zl)
	log.Info("starting server", "addr", cfg.Addr, "version", Version, "store", cfg.StoreDriver)
	observability.ExposeBuildInfo(Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rs, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer func() { _ = rs.Close() }()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer closeStore()

	producer, err := newSyncProducer(cfg.Kafka.Brokers)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer func() { _ = producer.Close() }()

	invalPub := invalidation.NewKafkaPublisher(log, producer, cfg.Kafka.InvalidationTopic, cfg.Publish)
	defer invalPub.Close()

	q := query.New(log, cache.NewRedis(rs, cfg.CacheOpTimeout), st, cfg.CacheTTL)
	hub := chat.NewHub()
	chatPub := chat.NewKafkaPublisher(producer, cfg.Kafka.ChatTopic)
	sub := chat.NewSubscriber(log, rs, hub, st, cfg.ChatChannelPrefix)
	srv := server.New(log, q, st, invalPub, hub, chatPub)

	errCh := make(chan error, 2)
	go func() { errCh <- sub.Run(ctx) }()
	go func() { errCh <- server.Run(ctx, log, cfg.Addr, srv.Routes()) }()

	// Both loops exit on ctx cancel; a failure in one takes down the other.
	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			stop()
		}
	}
	log.Info("server stopped")
	return firstErr
}

func openStore(cfg config.Config) (store.EventStore, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		st, err := postgres.New(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	case "memory":
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func newSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	return sarama.NewSyncProducer(brokers, sc)
}
