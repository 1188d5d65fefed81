package chatapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/queue"
)

// DeliveryScheduler decides, right after a message is stored, whether to
// mark it delivered now (recipient live) or to schedule a delayed receipt.
// It is a latency optimization, not a correctness guarantee: the presence
// check races with connects/disconnects and that is acceptable.
type DeliveryScheduler struct {
	Messages chat.MessageRepository
	Presence PresenceRegistry
	Queue    queue.Client
	Logger   *slog.Logger

	// Grace is the delay before an absent recipient's message is assumed
	// delivered anyway.
	Grace time.Duration
	// PresenceTimeout bounds the registry lookup; on timeout the recipient
	// counts as absent and the scheduled path takes over.
	PresenceTimeout time.Duration

	Now func() time.Time
}

const (
	defaultGrace           = 2 * time.Second
	defaultPresenceTimeout = 50 * time.Millisecond
)

func (d *DeliveryScheduler) Name() string { return "delivery" }

func (d *DeliveryScheduler) OnMessageCreated(ctx context.Context, msg *chat.Message, conv *chat.Conversation) error {
	recipient, ok := chat.ResolveRecipient(msg, conv)
	if !ok {
		return nil
	}
	if d.recipientPresent(ctx, recipient) {
		_, err := d.Messages.MarkDelivered(ctx, msg.ID, d.now())
		return err
	}

	payload, err := json.Marshal(DeliveryReceiptPayload{MessageID: string(msg.ID)})
	if err != nil {
		return err
	}
	grace := d.Grace
	if grace <= 0 {
		grace = defaultGrace
	}
	_, err = d.Queue.Enqueue(ctx, queue.Task{Type: TaskDeliveryReceipt, Payload: payload}, queue.EnqueueOption{
		Queue:     "chat",
		ProcessIn: grace,
	})
	if err != nil {
		// A scheduler outage must never strand the message at sent.
		d.Logger.Warn("receipt enqueue failed, marking delivered inline", "message_id", msg.ID, "error", err)
		_, err = d.Messages.MarkDelivered(ctx, msg.ID, d.now())
		return err
	}
	return nil
}

func (d *DeliveryScheduler) recipientPresent(ctx context.Context, recipient chat.Actor) bool {
	timeout := d.PresenceTimeout
	if timeout <= 0 {
		timeout = defaultPresenceTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	present, err := d.Presence.IsPresent(lookupCtx, recipient)
	if err != nil {
		d.Logger.Debug("presence lookup failed, treating recipient as absent", "recipient", recipient.ChannelKey(), "error", err)
		return false
	}
	return present
}

func (d *DeliveryScheduler) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
