package chat

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/spotmeet/spotmeet/internal/observability"
)

// MemberLister resolves a chatroom to the users that belong to it.
type MemberLister interface {
	ChatroomMembers(ctx context.Context, chatroomID int64) ([]int64, error)
}

// ChannelSubscriber is the subscribe side of the fanout, implemented by
// redisstore.Client.
type ChannelSubscriber interface {
	PSubscribe(ctx context.Context, pattern string) *redis.PubSub
}

// Subscriber listens on the chatroom pub/sub channels and delivers each
// message to the locally connected members of the chatroom. Each server
// process runs one Subscriber against its own Hub.
type Subscriber struct {
	log     *slog.Logger
	pubsub  ChannelSubscriber
	hub     *Hub
	members MemberLister
	prefix  string
}

func NewSubscriber(log *slog.Logger, pubsub ChannelSubscriber, hub *Hub, members MemberLister, channelPrefix string) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{log: log, pubsub: pubsub, hub: hub, members: members, prefix: channelPrefix}
}

// Run blocks until ctx is canceled. Delivery failures to individual
// sessions are counted and skipped so one slow client cannot stall the
// whole chatroom.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.pubsub.PSubscribe(ctx, s.prefix+"*")
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	s.log.Info("chat subscriber started", "pattern", s.prefix+"*")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("chat subscriber shutting down")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.deliver(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, channel string, payload []byte) {
	chatroomID, err := ChatroomFromChannel(s.prefix, channel)
	if err != nil {
		s.log.Warn("unexpected pub/sub channel", "channel", channel, "err", err)
		return
	}

	members, err := s.members.ChatroomMembers(ctx, chatroomID)
	if err != nil {
		s.log.Error("chatroom member lookup failed", "chatroom_id", chatroomID, "err", err)
		return
	}

	delivered := 0
	for _, userID := range members {
		if s.hub.SendToUser(userID, payload) {
			delivered++
		}
	}
	if delivered > 0 {
		observability.IncChatFanout("delivered")
	}
	s.log.Debug("chat message fanned out",
		"chatroom_id", chatroomID, "members", len(members), "delivered", delivered)
}
