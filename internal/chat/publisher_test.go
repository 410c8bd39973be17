package chat

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
)

func TestKafkaPublisherPublishChat(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "chat-messages" {
			t.Errorf("topic = %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "42" {
			t.Errorf("key = %q, want chatroom id", key)
		}
		body, _ := msg.Value.Encode()
		var m Message
		if err := json.Unmarshal(body, &m); err != nil {
			return err
		}
		if m.SenderName != "mina" || m.Content != "hello" {
			t.Errorf("unexpected body: %+v", m)
		}
		return nil
	})

	p := NewKafkaPublisher(producer, "chat-messages")
	err := p.PublishChat(Message{ChatroomID: 42, SenderID: 7, SenderName: "mina", Content: "hello"})
	if err != nil {
		t.Fatalf("PublishChat: %v", err)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaPublisherSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer, "chat-messages")
	if err := p.PublishChat(Message{ChatroomID: 1}); err == nil {
		t.Fatal("expected error from failed send")
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
