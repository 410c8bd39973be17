package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/spotmeet/spotmeet/internal/cache/redisstore"
)

// redisCache adapts redisstore.Client to Store, bounding every operation
// with a short timeout so a slow cache never blocks the request path.
type redisCache struct {
	cli     *redisstore.Client
	timeout time.Duration
}

func NewRedis(cli *redisstore.Client, opTimeout time.Duration) Store {
	return &redisCache{cli: cli, timeout: opTimeout}
}

func (c *redisCache) withTimeout() (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *redisCache) MGet(keys []string) (map[string][]byte, error) {
	ctx, cancel := c.withTimeout()
	defer cancel()
	m, err := c.cli.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("cache mget: %w", err)
	}
	return m, nil
}

func (c *redisCache) MSetWithTTL(kv map[string][]byte, ttl time.Duration) error {
	ctx, cancel := c.withTimeout()
	defer cancel()
	if err := c.cli.MSetWithTTL(ctx, kv, ttl); err != nil {
		return fmt.Errorf("cache mset %d keys: %w", len(kv), err)
	}
	return nil
}

func (c *redisCache) Del(keys ...string) error {
	ctx, cancel := c.withTimeout()
	defer cancel()
	if err := c.cli.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache del %d keys: %w", len(keys), err)
	}
	return nil
}
