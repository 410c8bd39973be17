package chat

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
)

// KafkaPublisher puts chat messages on the chat-messages topic, keyed
// by chatroom so one room's messages share a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishChat(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode chat message: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", msg.ChatroomID)),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("send chat message: %w", err)
	}
	return nil
}
