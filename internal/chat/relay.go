package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/spotmeet/spotmeet/internal/config"
	"github.com/spotmeet/spotmeet/internal/observability"
)

// ChannelPublisher is the pub/sub side of the relay, implemented by
// redisstore.Client.
type ChannelPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Relay is the chat fanout consumer: it subscribes to the chat-messages
// topic as a consumer group and republishes each message onto the
// pub/sub channel scoped to its chatroom.
type Relay struct {
	cfg    config.KafkaCfg
	log    *slog.Logger
	pubsub ChannelPublisher
	prefix string
}

func NewRelay(cfg config.KafkaCfg, log *slog.Logger, pubsub ChannelPublisher, channelPrefix string) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{cfg: cfg, log: log, pubsub: pubsub, prefix: channelPrefix}
}

// Start blocks until ctx is canceled.
func (r *Relay) Start(ctx context.Context) error {
	if r.pubsub == nil {
		return errors.New("chat relay: pub/sub dependency is required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.ChatGroup, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	h := &relayHandler{process: r.ProcessOne}

	r.log.Info("chat relay starting",
		"brokers", r.cfg.Brokers, "topic", r.cfg.ChatTopic, "group", r.cfg.ChatGroup)

	for {
		if err := group.Consume(ctx, []string{r.cfg.ChatTopic}, h); err != nil {
			r.log.Error("relay consumer error", "err", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			r.log.Info("chat relay shutting down")
			return nil
		}
	}
}

// ProcessOne republishes a single chat message to its chatroom channel.
// Malformed messages are dropped and logged.
func (r *Relay) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		observability.IncChatFanout("malformed")
		r.log.Error("malformed chat message dropped",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	if err := r.pubsub.Publish(ctx, ChannelName(r.prefix, m.ChatroomID), msg.Value); err != nil {
		return fmt.Errorf("republish chatroom %d: %w", m.ChatroomID, err)
	}
	observability.IncChatFanout("relayed")
	return nil
}

type relayHandler struct {
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *relayHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *relayHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *relayHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
