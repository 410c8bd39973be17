package invalidation

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

type messageProcessor func(context.Context, *sarama.ConsumerMessage) error

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process messageProcessor
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
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
