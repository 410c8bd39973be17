package invalidation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/spotmeet/spotmeet/internal/cache"
	"github.com/spotmeet/spotmeet/internal/config"
	"github.com/spotmeet/spotmeet/internal/observability"
)

// Consumer is the long-running invalidation subscriber: it joins a
// consumer group on the cache-management topic and deletes grid keys as
// messages arrive. Deletes are idempotent, so duplicate and out-of-order
// delivery are harmless; a late invalidation only costs one extra cache
// miss because repopulation always re-reads the backing store.
type Consumer struct {
	cfg   config.KafkaCfg
	log   *slog.Logger
	cache cache.Store

	// already-applied offsets, so redeliveries after a rebalance skip
	// the redundant delete
	seen *lru.Cache[string, struct{}]

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
}

func NewConsumer(cfg config.KafkaCfg, log *slog.Logger, c cache.Store) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	seen, _ := lru.New[string, struct{}](8192)
	return &Consumer{
		cfg:    cfg,
		log:    log,
		cache:  c,
		seen:   seen,
		assign: map[int32]struct{}{},
	}
}

// Start blocks until ctx is canceled. Consume errors are logged and
// retried; the loop has no terminal state short of shutdown.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("invalidation consumer: cache dependency is required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.InvalidationGroup, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	h := &groupHandler{
		setup:   c.trackAssignment,
		cleanup: c.clearAssignment,
		process: c.ProcessOne,
	}

	c.log.Info("invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.InvalidationTopic, "group", c.cfg.InvalidationGroup)

	for {
		if err := group.Consume(ctx, []string{c.cfg.InvalidationTopic}, h); err != nil {
			c.log.Error("consumer error", "err", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			c.log.Info("invalidation consumer shutting down")
			return nil
		}
	}
}

// Readiness reports whether the group has assigned partitions to this
// instance.
func (c *Consumer) Readiness() (ready bool, partitions []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	for p := range c.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// ProcessOne handles a single message. Malformed messages are dropped
// and logged, never allowed to crash the consumer loop. A failed delete
// returns an error so the message is redelivered.
func (c *Consumer) ProcessOne(_ context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		observability.SetInvalidationLagSeconds(time.Since(msg.Timestamp).Seconds())
	}

	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		observability.IncInvalidation("malformed")
		c.log.Error("malformed invalidation message dropped",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := m.Validate(); err != nil {
		observability.IncInvalidation("invalid")
		c.log.Error("invalid invalidation message dropped",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	dedupeKey := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	if _, dup := c.seen.Get(dedupeKey); dup {
		observability.IncInvalidation("duplicate")
		return nil
	}

	if err := c.cache.Del(m.GridID); err != nil {
		observability.IncInvalidation("error")
		c.log.Error("cache delete failed", "grid_id", m.GridID, "err", err)
		return fmt.Errorf("cache del %q: %w", m.GridID, err)
	}
	c.seen.Add(dedupeKey, struct{}{})

	observability.IncInvalidation("ok")
	c.log.Debug("grid entry invalidated",
		"grid_id", m.GridID, "dur", time.Since(start).String())
	return nil
}

func (c *Consumer) trackAssignment(sess sarama.ConsumerGroupSession) {
	claims := sess.Claims()
	c.assignMu.Lock()
	c.assigned.Store(true)
	c.assign = map[int32]struct{}{}
	for _, parts := range claims {
		for _, p := range parts {
			c.assign[p] = struct{}{}
		}
	}
	c.assignMu.Unlock()
}

func (c *Consumer) clearAssignment(sarama.ConsumerGroupSession) {
	c.assignMu.Lock()
	c.assigned.Store(false)
	c.assign = map[int32]struct{}{}
	c.assignMu.Unlock()
}
