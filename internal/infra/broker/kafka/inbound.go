package kafka

import (
	"context"
	"log/slog"

	"github.com/IBM/sarama"
)

// InboundHandler processes one inbound record payload. A nil return
// acknowledges the record; an error leaves it for redelivery.
type InboundHandler func(ctx context.Context, payload []byte) error

// InboundConsumer reads the chat-app bridge topic as part of a consumer
// group. Records are handed to the handler one at a time; ingest dedup
// makes redelivery safe.
type InboundConsumer struct {
	group  sarama.ConsumerGroup
	topic  string
	handle InboundHandler
	logger *slog.Logger
}

func NewInboundConsumer(brokers []string, groupID, topic string, handle InboundHandler, logger *slog.Logger) (*InboundConsumer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &InboundConsumer{group: group, topic: topic, handle: handle, logger: logger}, nil
}

func (c *InboundConsumer) Run(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, inboundClaim{c}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *InboundConsumer) Close() error {
	return c.group.Close()
}

type inboundClaim struct {
	c *InboundConsumer
}

func (h inboundClaim) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h inboundClaim) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h inboundClaim) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for record := range claim.Messages() {
		if err := h.c.handle(sess.Context(), record.Value); err != nil {
			h.c.logger.Warn("inbound record failed, leaving unacknowledged", "topic", record.Topic, "offset", record.Offset, "error", err)
			continue
		}
		sess.MarkMessage(record, "")
	}
	return nil
}
