// Package chat relays chatroom messages between WebSocket clients,
// Kafka and Redis pub/sub. A horizontally-scaled fleet of stateful
// WebSocket-holding processes stays consistent through the pub/sub
// relay only; session registries are never shared across processes.
package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is the wire format on the chat-messages topic and the
// per-chatroom pub/sub channel.
type Message struct {
	ChatroomID   int64  `json:"chatroomId"`
	SenderID     int64  `json:"senderId"`
	SenderName   string `json:"senderName"`
	SenderImgURL string `json:"senderImgUrl"`
	Content      string `json:"content"`
}

// Frame is the payload of a binary WebSocket frame from a client.
type Frame struct {
	ChatroomID int64  `json:"chatroomId"`
	SenderID   int64  `json:"senderId"`
	Message    string `json:"message"`
}

// ChannelName returns the pub/sub channel for a chatroom, e.g.
// "chatroom:42".
func ChannelName(prefix string, chatroomID int64) string {
	return fmt.Sprintf("%s%d", prefix, chatroomID)
}

// ChatroomFromChannel parses the chatroom id back out of a channel name.
func ChatroomFromChannel(prefix, channel string) (int64, error) {
	raw, ok := strings.CutPrefix(channel, prefix)
	if !ok {
		return 0, fmt.Errorf("channel %q lacks prefix %q", channel, prefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("channel %q: %w", channel, err)
	}
	return id, nil
}
