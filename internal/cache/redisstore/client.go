// Package redisstore wraps Redis client operations used by the cache and
// the chat pub/sub relay.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/spotmeet/spotmeet/internal/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// MGet returns a map of found keys to their values. Missing keys are
// simply absent from the map; a key holding an empty value is present.
func (c *Client) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	start := time.Now()
	if len(keys) == 0 {
		observability.ObserveCacheOp("mget", nil, time.Since(start).Seconds())
		return map[string][]byte{}, nil
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	observability.ObserveCacheOp("mget", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}

	out := make(map[string][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue // missing key
		}
		switch t := v.(type) {
		case string:
			out[keys[i]] = []byte(t)
		case []byte:
			out[keys[i]] = t
		default:
			out[keys[i]] = fmt.Append(nil, t)
		}
	}
	return out, nil
}

// MSetWithTTL writes each entry with the same TTL over one pipeline.
// Per-key SETs are atomic; there is no cross-key transaction.
func (c *Client) MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	if len(kv) == 0 {
		observability.ObserveCacheOp("mset", nil, time.Since(start).Seconds())
		return nil
	}

	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range kv {
			if err := p.Set(ctx, k, v, ttl).Err(); err != nil {
				return fmt.Errorf("redis MSET pipeline SET %q: %w", k, err)
			}
		}
		return nil
	})

	observability.ObserveCacheOp("mset", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis MSET %d keys (pipeline): %w", len(kv), err)
	}
	return nil
}

// Del removes the keys. Absent keys are a silent no-op.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

// Publish sends a payload on a pub/sub channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	start := time.Now()
	err := c.rdb.Publish(ctx, channel, payload).Err()
	observability.ObserveCacheOp("publish", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis PUBLISH %q: %w", channel, err)
	}
	return nil
}

// PSubscribe subscribes to a channel pattern. The caller owns the
// returned subscription and must Close it.
func (c *Client) PSubscribe(ctx context.Context, pattern string) *redis.PubSub {
	return c.rdb.PSubscribe(ctx, pattern)
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
