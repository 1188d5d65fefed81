package chatapp

import (
	"context"
	"time"

	"marketchat/internal/domain/chat"
)

// Transport kinds understood by the notification decision engine.
const (
	TransportEmail   = "email"
	TransportChatApp = "chatapp"
)

// PresenceRegistry answers whether an actor currently holds a live
// connection. It is a shared short-TTL store written by whichever process
// observes the connection; answers are never authoritative beyond the TTL.
type PresenceRegistry interface {
	IsPresent(ctx context.Context, actor chat.Actor) (bool, error)
}

// EventPublisher pushes one event onto a participant's live channel.
type EventPublisher interface {
	Publish(ctx context.Context, channelKey string, event Event) error
}

// Contact holds the transport-specific addresses for a recipient. Zero
// fields simply exclude the matching transport.
type Contact struct {
	Email  string
	ChatID string
}

// ContactDirectory is the identity collaborator that maps an actor to its
// out-of-band contacts. An unknown actor yields a zero Contact, not an
// error.
type ContactDirectory interface {
	Contact(ctx context.Context, actor chat.Actor) (Contact, error)
}

// NotificationTransport is an out-of-band sender (email, chat-app). Send
// returns the provider's message id when it issues one.
type NotificationTransport interface {
	Kind() string
	Enabled() bool
	Send(ctx context.Context, to Contact, msg *chat.Message, conv *chat.Conversation) (externalID string, err error)
}

// DedupWindow suppresses repeat work for a key inside a TTL. Acquire
// reports true when the caller won the window.
type DedupWindow interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
