package chatapp

import (
	"time"

	"marketchat/internal/domain/chat"
)

// Event types published to live channels.
const (
	EventNewMessage    = "new_message"
	EventUnreadChanged = "unread_changed"
)

// Event is the payload published per (channel-key, event) pair.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Message        *MessagePayload `json:"message,omitempty"`
	Unread         *UnreadPayload  `json:"unread,omitempty"`
}

// MessagePayload carries the full message to live subscribers.
type MessagePayload struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderKind     string     `json:"sender_kind"`
	SenderID       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name,omitempty"`
	Content        string     `json:"content"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	ListingID      string     `json:"listing_id,omitempty"`
	ProductContext string     `json:"product_context,omitempty"`
}

// UnreadPayload refreshes one viewer's per-conversation unread counter.
type UnreadPayload struct {
	ViewerKind string `json:"viewer_kind"`
	ViewerID   string `json:"viewer_id"`
	Count      int64  `json:"count"`
}

func newMessageEvent(msg *chat.Message) Event {
	return Event{
		Type:           EventNewMessage,
		ConversationID: string(msg.ConversationID),
		Message:        messagePayload(msg),
	}
}

func messagePayload(msg *chat.Message) *MessagePayload {
	p := &MessagePayload{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderKind:     string(msg.Sender.Kind),
		SenderID:       msg.Sender.ID,
		SenderName:     msg.SenderName,
		Content:        msg.Content,
		Status:         string(msg.Status),
		CreatedAt:      msg.CreatedAt,
		ListingID:      msg.ListingID,
		ProductContext: msg.ProductContext,
	}
	if !msg.DeliveredAt.IsZero() {
		at := msg.DeliveredAt
		p.DeliveredAt = &at
	}
	if !msg.ReadAt.IsZero() {
		at := msg.ReadAt
		p.ReadAt = &at
	}
	return p
}
