package chatapp

import (
	"context"
	"encoding/json"
	"log/slog"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/queue"
)

// BroadcastFanout publishes a stored message to every distinct participant
// channel and then refreshes unread counters. One channel's failure never
// blocks the others and never fails the send.
type BroadcastFanout struct {
	Publisher EventPublisher
	Unread    *UnreadAggregator
	Queue     queue.Client
	Logger    *slog.Logger
}

func (f *BroadcastFanout) Name() string { return "fanout" }

func (f *BroadcastFanout) OnMessageCreated(ctx context.Context, msg *chat.Message, conv *chat.Conversation) error {
	event := newMessageEvent(msg)
	for _, target := range conv.BroadcastTargets() {
		if err := f.Publisher.Publish(ctx, target.ChannelKey(), event); err != nil {
			f.Logger.Warn("channel publish failed", "channel", target.ChannelKey(), "message_id", msg.ID, "error", err)
		}
	}

	if err := f.Unread.Refresh(ctx, conv.ID, msg.ID); err != nil {
		f.Logger.Warn("unread refresh failed, enqueueing", "conversation_id", conv.ID, "error", err)
		f.enqueueRefresh(ctx, conv.ID, msg.ID)
	}
	return nil
}

// enqueueRefresh is the fallback so a transient failure does not leave
// stale unread counters.
func (f *BroadcastFanout) enqueueRefresh(ctx context.Context, convID chat.ConversationID, msgID chat.MessageID) {
	payload, err := json.Marshal(UnreadRefreshPayload{ConversationID: string(convID), MessageID: string(msgID)})
	if err != nil {
		f.Logger.Error("unread refresh payload encode failed", "conversation_id", convID, "error", err)
		return
	}
	if _, err := f.Queue.Enqueue(ctx, queue.Task{Type: TaskUnreadRefresh, Payload: payload}, queue.EnqueueOption{Queue: "chat"}); err != nil {
		f.Logger.Warn("unread refresh enqueue failed", "conversation_id", convID, "error", err)
	}
}
