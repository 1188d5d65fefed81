package chat

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCursor rejects malformed pagination cursors.
var ErrInvalidCursor = errors.New("chat: invalid pagination cursor")

// ConversationRepository owns conversation rows. Insert must enforce the
// uniqueness of the participant tuple: concurrent creators for the same key
// get ErrDuplicateConversation and re-query instead of producing two rows.
type ConversationRepository interface {
	Insert(ctx context.Context, conv *Conversation) error
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByKey(ctx context.Context, key ConversationKey) (*Conversation, error)
	// Touch bumps activity metadata after a message append.
	Touch(ctx context.Context, id ConversationID, at time.Time, preview string) error
	// ListByParticipant pages threads for a viewer, most recent activity
	// first. The returned cursor is empty when the listing is exhausted.
	ListByParticipant(ctx context.Context, viewer Actor, limit int, cursor string) ([]*Conversation, string, error)
}

// MessageRepository owns message rows and their forward-only lifecycle.
// MarkDelivered and MarkRead are idempotent so at-least-once background
// jobs can repeat them freely; both return the current row.
type MessageRepository interface {
	Insert(ctx context.Context, msg *Message) error
	ByID(ctx context.Context, id MessageID) (*Message, error)
	ListByConversation(ctx context.Context, conversationID ConversationID, limit int, cursor string) ([]*Message, string, error)
	MarkDelivered(ctx context.Context, id MessageID, at time.Time) (*Message, error)
	MarkRead(ctx context.Context, id MessageID, at time.Time) (*Message, error)
	// MarkConversationRead marks every message matching the viewer's unread
	// filter as read and reports how many rows advanced.
	MarkConversationRead(ctx context.Context, conversationID ConversationID, filter UnreadFilter, at time.Time) (int64, error)
	// SetExternalRef records the out-of-band correlation id once; it
	// reports false when a ref was already present.
	SetExternalRef(ctx context.Context, id MessageID, ref string) (bool, error)
	CountUnread(ctx context.Context, conversationID ConversationID, filter UnreadFilter) (int64, error)
}

// ParticipantDirectory is the identity collaborator: it only answers
// whether a participant id references an existing entity of that kind.
type ParticipantDirectory interface {
	Exists(ctx context.Context, actor Actor) (bool, error)
}
