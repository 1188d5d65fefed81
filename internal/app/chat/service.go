package chatapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/domain/catalog"
	"marketchat/internal/domain/chat"
)

// Reaction is a post-commit handler for a freshly stored message. Each
// reaction runs inside its own failure boundary: whatever it returns or
// panics with is logged and never reaches the sender.
type Reaction interface {
	Name() string
	OnMessageCreated(ctx context.Context, msg *chat.Message, conv *chat.Conversation) error
}

// Service is the conversation store surface: find-or-create threads,
// append messages, advance the delivery lifecycle. Message persistence is
// the only must-succeed step; the reaction chain (delivery scheduling,
// fan-out, notification) is best-effort.
type Service struct {
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Directory     chat.ParticipantDirectory
	Catalog       catalog.Directory
	Reactions     []Reaction
	Logger        *slog.Logger

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// FindOrCreateInput identifies a thread by its participant tuple.
type FindOrCreateInput struct {
	Participants  chat.Participants
	ListingID     string
	SourceChannel string
}

// FindOrCreateConversation returns the existing thread for the tuple or
// creates one. Concurrent first-contact races converge on a single row:
// the insert runs under a uniqueness constraint and a duplicate violation
// triggers a re-query instead of an error.
func (s *Service) FindOrCreateConversation(ctx context.Context, in FindOrCreateInput) (*chat.Conversation, error) {
	if err := in.Participants.Validate(); err != nil {
		return nil, err
	}
	for _, actor := range in.Participants.Actors() {
		ok, err := s.Directory.Exists(ctx, actor)
		if err != nil {
			return nil, fmt.Errorf("verify participant %s: %w", actor.ChannelKey(), err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", chat.ErrParticipantNotFound, actor.ChannelKey())
		}
	}

	key := chat.ConversationKey{
		ListingID:        in.ListingID,
		BuyerID:          in.Participants.BuyerID,
		SellerID:         in.Participants.SellerID,
		InquirerSellerID: in.Participants.InquirerSellerID,
	}
	if conv, err := s.Conversations.ByKey(ctx, key); err == nil {
		return conv, nil
	} else if err != chat.ErrConversationNotFound {
		return nil, err
	}

	conv, err := chat.NewConversation(chat.ConversationID(uuid.NewString()), in.Participants, in.ListingID, in.SourceChannel, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.Conversations.Insert(ctx, conv); err != nil {
		if err == chat.ErrDuplicateConversation {
			// Lost the race; the winner's row is the conversation.
			return s.Conversations.ByKey(ctx, key)
		}
		return nil, err
	}
	return conv, nil
}

// SendMessageInput carries an authenticated sender resolved upstream.
// ExternalRef is set only for messages ingested from an external channel;
// it marks the message as already mirrored there.
type SendMessageInput struct {
	ConversationID chat.ConversationID
	Sender         chat.Actor
	SenderName     string
	Content        string
	ListingID      string
	ExternalRef    string
}

// SendMessage appends a message in sent status, touches the thread's
// activity and then runs the reaction chain. The caller gets the stored
// message as soon as the write lands, regardless of downstream health.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	conv, err := s.Conversations.ByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(in.Sender) && in.Sender.Kind != chat.KindStaff {
		return nil, chat.ErrNotParticipant
	}

	listingID := in.ListingID
	if listingID == "" {
		listingID = conv.ListingID
	}
	productContext := s.productContext(ctx, listingID)

	now := s.now()
	msg, err := chat.NewMessage(chat.MessageID(uuid.NewString()), conv.ID, in.Sender, in.SenderName, in.Content, listingID, productContext, now)
	if err != nil {
		return nil, err
	}
	if in.ExternalRef != "" {
		msg.SetExternalRef(in.ExternalRef)
	}
	if err := s.Messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.Conversations.Touch(ctx, conv.ID, now, chat.Preview(msg.Content)); err != nil {
		s.Logger.Warn("conversation touch failed", "conversation_id", conv.ID, "error", err)
	}
	conv.Touch(now, chat.Preview(msg.Content))

	s.runReactions(ctx, msg, conv)
	return msg, nil
}

// productContext snapshots the listing into free text so the message keeps
// its product reference even if the listing later changes. Catalog trouble
// only costs the snapshot.
func (s *Service) productContext(ctx context.Context, listingID string) string {
	if listingID == "" || s.Catalog == nil {
		return ""
	}
	summary, err := s.Catalog.Summary(ctx, listingID)
	if err != nil {
		s.Logger.Warn("catalog lookup failed", "listing_id", listingID, "error", err)
		return ""
	}
	if summary == nil {
		return ""
	}
	return summary.ContextLine()
}

func (s *Service) runReactions(ctx context.Context, msg *chat.Message, conv *chat.Conversation) {
	for _, r := range s.Reactions {
		s.runReaction(ctx, r, msg, conv)
	}
}

func (s *Service) runReaction(ctx context.Context, r Reaction, msg *chat.Message, conv *chat.Conversation) {
	defer func() {
		if rec := recover(); rec != nil {
			s.Logger.Error("reaction panicked", "reaction", r.Name(), "message_id", msg.ID, "panic", rec)
		}
	}()
	if err := r.OnMessageCreated(ctx, msg, conv); err != nil {
		s.Logger.Warn("reaction failed", "reaction", r.Name(), "message_id", msg.ID, "error", err)
	}
}

// MarkDelivered advances a message to delivered; repeats are no-ops.
func (s *Service) MarkDelivered(ctx context.Context, id chat.MessageID) (*chat.Message, error) {
	return s.Messages.MarkDelivered(ctx, id, s.now())
}

// MarkRead advances a message to read; repeats are no-ops.
func (s *Service) MarkRead(ctx context.Context, id chat.MessageID) (*chat.Message, error) {
	return s.Messages.MarkRead(ctx, id, s.now())
}

// MarkConversationRead marks every unread inbound message for the viewer
// read and reports how many advanced. Triggered when a viewer opens the
// thread; the unread aggregator reflects it on its next count.
func (s *Service) MarkConversationRead(ctx context.Context, id chat.ConversationID, viewer chat.Actor) (int64, error) {
	conv, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		return 0, err
	}
	filter, ok := chat.UnreadFilterFor(viewer, conv)
	if !ok {
		return 0, chat.ErrNotParticipant
	}
	return s.Messages.MarkConversationRead(ctx, id, filter, s.now())
}

// ListConversations pages a viewer's threads, newest activity first.
func (s *Service) ListConversations(ctx context.Context, viewer chat.Actor, limit int, cursor string) ([]*chat.Conversation, string, error) {
	return s.Conversations.ListByParticipant(ctx, viewer, limit, cursor)
}

// ListMessages pages a thread's history for a participant viewer.
func (s *Service) ListMessages(ctx context.Context, id chat.ConversationID, viewer chat.Actor, limit int, cursor string) ([]*chat.Message, string, error) {
	conv, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !conv.HasParticipant(viewer) && viewer.Kind != chat.KindStaff {
		return nil, "", chat.ErrNotParticipant
	}
	return s.Messages.ListByConversation(ctx, id, limit, cursor)
}
