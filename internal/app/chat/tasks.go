package chatapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/queue"
)

// Task types consumed by the worker pool. The queue delivers at least
// once, so every handler is idempotent by construction.
const (
	TaskDeliveryReceipt = "chat:delivery_receipt"
	TaskUnreadRefresh   = "chat:unread_refresh"
	TaskNotify          = "chat:notify"
)

type DeliveryReceiptPayload struct {
	MessageID string `json:"message_id"`
}

type UnreadRefreshPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type NotifyPayload struct {
	MessageID string `json:"message_id"`
}

// TaskHandlers binds the background half of the message lifecycle to the
// queue server.
type TaskHandlers struct {
	Service       *Service
	Engine        *NotificationDecisionEngine
	Unread        *UnreadAggregator
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Logger        *slog.Logger
}

func (h *TaskHandlers) Register(srv queue.Server) {
	srv.Register(TaskDeliveryReceipt, h.handleDeliveryReceipt)
	srv.Register(TaskUnreadRefresh, h.handleUnreadRefresh)
	srv.Register(TaskNotify, h.handleNotify)
}

// handleDeliveryReceipt finalizes the grace period for an absent
// recipient. Already-delivered and already-read messages are no-ops.
func (h *TaskHandlers) handleDeliveryReceipt(ctx context.Context, task queue.Task) error {
	var payload DeliveryReceiptPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", task.Type, err)
	}
	_, err := h.Service.MarkDelivered(ctx, chat.MessageID(payload.MessageID))
	if errors.Is(err, chat.ErrMessageNotFound) {
		h.Logger.Debug("receipt for unknown message dropped", "message_id", payload.MessageID)
		return nil
	}
	return err
}

func (h *TaskHandlers) handleUnreadRefresh(ctx context.Context, task queue.Task) error {
	var payload UnreadRefreshPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", task.Type, err)
	}
	err := h.Unread.Refresh(ctx, chat.ConversationID(payload.ConversationID), chat.MessageID(payload.MessageID))
	if errors.Is(err, chat.ErrConversationNotFound) {
		return nil
	}
	return err
}

func (h *TaskHandlers) handleNotify(ctx context.Context, task queue.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode %s: %w", task.Type, err)
	}
	msg, err := h.Messages.ByID(ctx, chat.MessageID(payload.MessageID))
	if errors.Is(err, chat.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	conv, err := h.Conversations.ByID(ctx, msg.ConversationID)
	if errors.Is(err, chat.ErrConversationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return h.Engine.Evaluate(ctx, msg, conv)
}
