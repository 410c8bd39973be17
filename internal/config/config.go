package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type KafkaCfg struct {
	Brokers             []string
	InvalidationTopic   string
	InvalidationGroup   string
	ChatTopic           string
	ChatGroup           string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

type PublishCfg struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type Config struct {
	Addr              string
	AdminAddr         string
	LogLevel          string
	LogConsole        bool
	RedisAddr         string
	CacheTTL          time.Duration
	CacheOpTimeout    time.Duration
	StoreDriver       string
	PostgresDSN       string
	ChatChannelPrefix string
	Kafka             KafkaCfg
	Publish           PublishCfg
}

func FromEnv() Config {
	return Config{
		Addr:              getenv("ADDR", ":8080"),
		AdminAddr:         getenv("ADMIN_ADDR", ":8091"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogConsole:        getbool("LOG_CONSOLE", false),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		CacheTTL:          getduration("CACHE_TTL", 10*time.Minute),
		CacheOpTimeout:    getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		StoreDriver:       getenv("STORE_DRIVER", "memory"),
		PostgresDSN:       getenv("POSTGRES_DSN", ""),
		ChatChannelPrefix: getenv("CHAT_CHANNEL_PREFIX", "chatroom:"),
		Kafka: KafkaCfg{
			Brokers:             splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			InvalidationTopic:   getenv("KAFKA_INVALIDATION_TOPIC", "cache-management"),
			InvalidationGroup:   getenv("KAFKA_INVALIDATION_GROUP", "grid-invalidator"),
			ChatTopic:           getenv("KAFKA_CHAT_TOPIC", "chat-messages"),
			ChatGroup:           getenv("KAFKA_CHAT_GROUP", "chat-relay"),
			SessionTimeout:      getduration("KAFKA_SESSION_TIMEOUT", 30*time.Second),
			Heartbeat:           getduration("KAFKA_HEARTBEAT", 3*time.Second),
			RebalanceTimeout:    getduration("KAFKA_REBALANCE_TIMEOUT", 30*time.Second),
			InitialOffsetOldest: getbool("KAFKA_INITIAL_OFFSET_OLDEST", true),
		},
		Publish: PublishCfg{
			QueueSize:   getint("PUBLISH_QUEUE_SIZE", 256),
			Workers:     getint("PUBLISH_WORKERS", 2),
			MaxRetry:    getint("PUBLISH_MAX_RETRY", 3),
			BaseBackoff: getduration("PUBLISH_BASE_BACKOFF", 100*time.Millisecond),
			MaxBackoff:  getduration("PUBLISH_MAX_BACKOFF", 2*time.Second),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
