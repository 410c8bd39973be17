package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/spotmeet/spotmeet/internal/config"
)

type recordingPublisher struct {
	channels []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

func chatRecord(t *testing.T, m Message) *sarama.ConsumerMessage {
	t.Helper()
	body, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "chat-messages", Value: body}
}

func TestRelayProcessOne(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRelay(config.KafkaCfg{}, nil, pub, "chatroom:")

	msg := chatRecord(t, Message{ChatroomID: 42, SenderID: 7, SenderName: "mina", Content: "hello"})
	if err := r.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}

	if len(pub.channels) != 1 || pub.channels[0] != "chatroom:42" {
		t.Fatalf("unexpected channels: %v", pub.channels)
	}
	var got Message
	if err := json.Unmarshal(pub.payloads[0], &got); err != nil {
		t.Fatalf("payload not valid json: %v", err)
	}
	if got.SenderName != "mina" || got.Content != "hello" {
		t.Fatalf("payload mangled: %+v", got)
	}
}

func TestRelayDropsMalformed(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRelay(config.KafkaCfg{}, nil, pub, "chatroom:")

	msg := &sarama.ConsumerMessage{Topic: "chat-messages", Value: []byte("{nope")}
	if err := r.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("malformed message must be dropped, got %v", err)
	}
	if len(pub.channels) != 0 {
		t.Fatalf("malformed message was republished: %v", pub.channels)
	}
}

func TestRelayPublishFailureSurfaced(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	r := NewRelay(config.KafkaCfg{}, nil, pub, "chatroom:")

	msg := chatRecord(t, Message{ChatroomID: 1, SenderID: 1, Content: "x"})
	if err := r.ProcessOne(context.Background(), msg); err == nil {
		t.Fatal("expected error so the record is redelivered")
	}
}
