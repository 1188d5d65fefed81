package chatapp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/queue"
)

// NotificationDecisionEngine decides, per out-of-band transport, whether a
// message warrants an email or chat-app notification for a recipient who
// is not live. A transport outage is never fatal: sends are logged at low
// severity and swallowed.
type NotificationDecisionEngine struct {
	Messages   chat.MessageRepository
	Presence   PresenceRegistry
	Contacts   ContactDirectory
	Transports []NotificationTransport
	Dedup      DedupWindow
	Queue      queue.Client
	Logger     *slog.Logger

	// DedupTTL is the window in which a repeat email notification for the
	// same message is suppressed. Email has no external correlation id, so
	// a duplicate on job retry is an accepted risk, minimized here.
	DedupTTL time.Duration
	// PresenceTimeout bounds registry lookups; a timeout counts as absent.
	PresenceTimeout time.Duration

	Now func() time.Time
}

const defaultDedupTTL = 60 * time.Second

func (e *NotificationDecisionEngine) Name() string { return "notify" }

// OnMessageCreated offloads evaluation to the job queue so the sender
// never waits on a transport. When the queue is down, evaluation runs
// inline instead of being dropped.
func (e *NotificationDecisionEngine) OnMessageCreated(ctx context.Context, msg *chat.Message, conv *chat.Conversation) error {
	payload, err := json.Marshal(NotifyPayload{MessageID: string(msg.ID)})
	if err != nil {
		return err
	}
	if _, err := e.Queue.Enqueue(ctx, queue.Task{Type: TaskNotify, Payload: payload}, queue.EnqueueOption{Queue: "chat"}); err != nil {
		e.Logger.Warn("notify enqueue failed, evaluating inline", "message_id", msg.ID, "error", err)
		return e.Evaluate(ctx, msg, conv)
	}
	return nil
}

// Evaluate runs the decision predicate for every transport. It is
// idempotent: the chat-app path is guarded by the external correlation id
// and the email path by the dedup window, so at-least-once job delivery
// never double-sends externally.
func (e *NotificationDecisionEngine) Evaluate(ctx context.Context, msg *chat.Message, conv *chat.Conversation) error {
	recipient, ok := chat.ResolveRecipient(msg, conv)
	if !ok {
		return nil
	}
	contact, err := e.Contacts.Contact(ctx, recipient)
	if err != nil {
		e.Logger.Warn("contact lookup failed, skipping notification", "recipient", recipient.ChannelKey(), "error", err)
		return nil
	}
	for _, transport := range e.Transports {
		e.evaluateTransport(ctx, transport, recipient, contact, msg, conv)
	}
	return nil
}

func (e *NotificationDecisionEngine) evaluateTransport(ctx context.Context, transport NotificationTransport, recipient chat.Actor, contact Contact, msg *chat.Message, conv *chat.Conversation) {
	kind := transport.Kind()

	// A message that already carries an external correlation id either
	// originated on the chat-app channel or was mirrored there; never echo
	// it back out.
	if kind == TransportChatApp && msg.ExternalRef != "" {
		return
	}

	// When the thread itself originated on the chat-app channel, that
	// transport is the primary delivery path, not a fallback: the remote
	// party has no marketplace UI, so presence and eligibility do not
	// apply and only the idempotency guard above holds it back.
	direct := kind == TransportChatApp && conv.SourceChannel == TransportChatApp

	if !direct {
		if !transport.Enabled() {
			return
		}
		if kind == TransportChatApp && recipient.Kind != chat.KindSeller {
			return
		}
		if e.recipientPresent(ctx, recipient) {
			return
		}
	}

	switch kind {
	case TransportEmail:
		if contact.Email == "" {
			return
		}
		if !e.acquireEmailWindow(ctx, msg.ID) {
			return
		}
	case TransportChatApp:
		if contact.ChatID == "" {
			return
		}
	}

	externalID, err := transport.Send(ctx, contact, msg, conv)
	if err != nil {
		e.Logger.Info("notification send failed", "transport", kind, "recipient", recipient.ChannelKey(), "message_id", msg.ID, "error", err)
		return
	}
	e.Logger.Debug("notification sent", "transport", kind, "recipient", recipient.ChannelKey(), "message_id", msg.ID)

	if kind == TransportChatApp && externalID != "" {
		if _, err := e.Messages.SetExternalRef(ctx, msg.ID, externalID); err != nil {
			e.Logger.Warn("external ref store failed", "message_id", msg.ID, "error", err)
		}
		msg.SetExternalRef(externalID)
		// Provider confirmation is itself a delivery signal.
		if _, err := e.Messages.MarkDelivered(ctx, msg.ID, e.now()); err != nil {
			e.Logger.Warn("delivery mark after chat-app send failed", "message_id", msg.ID, "error", err)
		}
	}
}

// acquireEmailWindow wins or loses the short dedup window for a message.
// When the window store is unreachable the send proceeds: a duplicate
// email is the accepted risk, a silently dropped one is not.
func (e *NotificationDecisionEngine) acquireEmailWindow(ctx context.Context, id chat.MessageID) bool {
	if e.Dedup == nil {
		return true
	}
	ttl := e.DedupTTL
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	ok, err := e.Dedup.Acquire(ctx, "notify:email:"+string(id), ttl)
	if err != nil {
		e.Logger.Debug("email dedup window unavailable", "message_id", id, "error", err)
		return true
	}
	return ok
}

func (e *NotificationDecisionEngine) recipientPresent(ctx context.Context, recipient chat.Actor) bool {
	timeout := e.PresenceTimeout
	if timeout <= 0 {
		timeout = defaultPresenceTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	present, err := e.Presence.IsPresent(lookupCtx, recipient)
	if err != nil {
		e.Logger.Debug("presence lookup failed, treating recipient as absent", "recipient", recipient.ChannelKey(), "error", err)
		return false
	}
	return present
}

func (e *NotificationDecisionEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
