// Package cache defines the distributed cache contract used by the grid
// read path and the invalidation consumer.
package cache

import "time"

// Store is a batched key-value cache. MGet distinguishes an absent key
// from a key holding an empty value; MSetWithTTL applies the same TTL to
// each key independently; Del is idempotent and treats absent keys as a
// no-op.
type Store interface {
	MGet(keys []string) (map[string][]byte, error)
	MSetWithTTL(kv map[string][]byte, ttl time.Duration) error
	Del(keys ...string) error
}
