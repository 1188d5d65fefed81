package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmptyContent    = errors.New("chat: message content must not be empty")
	ErrMessageNotFound = errors.New("chat: message not found")
)

type MessageID string

// MessageStatus advances forward-only: sent → delivered → read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is immutable in content after creation; only the delivery
// lifecycle and the external correlation id advance.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Sender         Actor
	SenderName     string
	Content        string
	ListingID      string
	ProductContext string
	Status         MessageStatus
	CreatedAt      time.Time
	DeliveredAt    time.Time
	ReadAt         time.Time
	// ExternalRef correlates the message with its mirror on an out-of-band
	// transport. Set once; guards against double-sending on job retries.
	ExternalRef string
}

func NewMessage(id MessageID, conversationID ConversationID, sender Actor, senderName, content, listingID, productContext string, now time.Time) (*Message, error) {
	if !sender.Valid() {
		return nil, ErrInvalidSender
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		SenderName:     senderName,
		Content:        content,
		ListingID:      listingID,
		ProductContext: productContext,
		Status:         StatusSent,
		CreatedAt:      now.UTC(),
	}, nil
}

// MarkDelivered advances sent → delivered. Repeat calls and calls on a read
// message are no-ops, so at-least-once receipt jobs stay safe.
func (m *Message) MarkDelivered(now time.Time) bool {
	if m.Status != StatusSent {
		return false
	}
	m.Status = StatusDelivered
	m.DeliveredAt = now.UTC()
	return true
}

// MarkRead advances to read and backfills DeliveredAt when the message was
// read before any delivery receipt arrived.
func (m *Message) MarkRead(now time.Time) bool {
	if m.Status == StatusRead {
		return false
	}
	now = now.UTC()
	if m.DeliveredAt.IsZero() {
		m.DeliveredAt = now
	}
	m.Status = StatusRead
	m.ReadAt = now
	return true
}

// SetExternalRef records the out-of-band correlation id. It only takes
// effect once.
func (m *Message) SetExternalRef(ref string) bool {
	if m.ExternalRef != "" || ref == "" {
		return false
	}
	m.ExternalRef = ref
	return true
}

func (m *Message) IsUnread() bool {
	return m.ReadAt.IsZero()
}
