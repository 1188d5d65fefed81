package chatapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"marketchat/internal/domain/chat"
)

// ChatAppInbound is the wire shape a channel bridge publishes for a
// message written inside the external chat app. ExternalRef is the
// provider's message id and must be set.
type ChatAppInbound struct {
	ExternalRef      string `json:"external_ref"`
	ListingID        string `json:"listing_id,omitempty"`
	BuyerID          string `json:"buyer_id,omitempty"`
	SellerID         string `json:"seller_id,omitempty"`
	InquirerSellerID string `json:"inquirer_seller_id,omitempty"`
	SenderKind       string `json:"sender_kind"`
	SenderID         string `json:"sender_id"`
	SenderName       string `json:"sender_name,omitempty"`
	Content          string `json:"content"`
}

// ChatAppIngest turns inbound chat-app records into stored messages. The
// resulting thread is marked as chat-app sourced, which makes the chat-app
// transport the primary delivery path for replies; the message keeps its
// external correlation id so it is never echoed back out.
type ChatAppIngest struct {
	Service *Service
	Dedup   DedupWindow
	Logger  *slog.Logger

	// SeenTTL is how long a processed external ref suppresses redelivery
	// of the same record from the broker.
	SeenTTL time.Duration
}

const defaultSeenTTL = 10 * time.Minute

// Handle decodes and ingests one inbound record. Malformed records are
// logged and dropped; a store failure is returned so the consumer leaves
// the record unacknowledged.
func (g *ChatAppIngest) Handle(ctx context.Context, payload []byte) error {
	var in ChatAppInbound
	if err := json.Unmarshal(payload, &in); err != nil {
		g.Logger.Warn("inbound record malformed, dropping", "error", err)
		return nil
	}
	if in.ExternalRef == "" {
		g.Logger.Warn("inbound record missing external ref, dropping")
		return nil
	}
	conv, err := g.Service.FindOrCreateConversation(ctx, FindOrCreateInput{
		Participants: chat.Participants{
			BuyerID:          in.BuyerID,
			SellerID:         in.SellerID,
			InquirerSellerID: in.InquirerSellerID,
		},
		ListingID:     in.ListingID,
		SourceChannel: TransportChatApp,
	})
	if err != nil {
		return fmt.Errorf("ingest conversation %s: %w", in.ExternalRef, err)
	}

	// Acquired only after the thread lookup succeeds, so a record that
	// failed validation stays eligible for broker redelivery.
	if !g.acquire(ctx, in.ExternalRef) {
		return nil
	}

	_, err = g.Service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.ID,
		Sender:         chat.Actor{Kind: chat.ActorKind(in.SenderKind), ID: in.SenderID},
		SenderName:     in.SenderName,
		Content:        in.Content,
		ListingID:      in.ListingID,
		ExternalRef:    in.ExternalRef,
	})
	if err != nil {
		return fmt.Errorf("ingest message %s: %w", in.ExternalRef, err)
	}
	return nil
}

func (g *ChatAppIngest) acquire(ctx context.Context, ref string) bool {
	if g.Dedup == nil {
		return true
	}
	ttl := g.SeenTTL
	if ttl <= 0 {
		ttl = defaultSeenTTL
	}
	ok, err := g.Dedup.Acquire(ctx, "ingest:chatapp:"+ref, ttl)
	if err != nil {
		// Better a rare duplicate row than a dropped inbound message.
		g.Logger.Debug("ingest dedup window unavailable", "external_ref", ref, "error", err)
		return true
	}
	return ok
}
