package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	chatapp "marketchat/internal/app/chat"
)

// EventPublisher pushes chat events onto the live-channel topic, one
// record per (channel-key, event). Downstream websocket gateways consume
// the topic and forward events to their connected subscribers.
type EventPublisher struct {
	Producer *Producer
	Topic    string
}

var _ chatapp.EventPublisher = (*EventPublisher)(nil)

func (p *EventPublisher) Publish(ctx context.Context, channelKey string, event chatapp.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: encode %s event: %w", event.Type, err)
	}
	return p.Producer.Publish(ctx, p.Topic, channelKey, payload, map[string]string{
		"event_type": event.Type,
	})
}
