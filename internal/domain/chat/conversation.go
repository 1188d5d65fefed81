package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidParticipants   = errors.New("chat: conversation needs at least one participant")
	ErrParticipantNotFound   = errors.New("chat: participant does not exist")
	ErrConversationNotFound  = errors.New("chat: conversation not found")
	ErrDuplicateConversation = errors.New("chat: conversation already exists for participants")
	ErrNotParticipant        = errors.New("chat: actor is not a conversation participant")
)

type ConversationID string

// Participants holds the optional participant slots of a conversation.
// InquirerSellerID is a second seller asking about another seller's listing.
type Participants struct {
	BuyerID          string
	SellerID         string
	InquirerSellerID string
	StaffID          string
}

func (p Participants) Validate() error {
	if p.BuyerID == "" && p.SellerID == "" && p.InquirerSellerID == "" && p.StaffID == "" {
		return ErrInvalidParticipants
	}
	return nil
}

// Actors returns one actor per filled slot, kinds matching the slot.
func (p Participants) Actors() []Actor {
	var out []Actor
	if p.BuyerID != "" {
		out = append(out, Actor{Kind: KindBuyer, ID: p.BuyerID})
	}
	if p.SellerID != "" {
		out = append(out, Actor{Kind: KindSeller, ID: p.SellerID})
	}
	if p.InquirerSellerID != "" && p.InquirerSellerID != p.SellerID {
		out = append(out, Actor{Kind: KindSeller, ID: p.InquirerSellerID})
	}
	if p.StaffID != "" {
		out = append(out, Actor{Kind: KindStaff, ID: p.StaffID})
	}
	return out
}

// ConversationKey is the uniqueness tuple: re-contacting about the same
// listing with the same parties reuses the existing conversation.
type ConversationKey struct {
	ListingID        string
	BuyerID          string
	SellerID         string
	InquirerSellerID string
}

func (k ConversationKey) String() string {
	return strings.Join([]string{k.ListingID, k.BuyerID, k.SellerID, k.InquirerSellerID}, "|")
}

// Conversation is a thread between a fixed participant set, optionally about
// one listing. SourceChannel is set when the thread originated on an external
// transport (e.g. an inbound chat-app message) rather than the marketplace UI.
type Conversation struct {
	ID                 ConversationID
	Participants       Participants
	ListingID          string
	SourceChannel      string
	CreatedAt          time.Time
	LastActivityAt     time.Time
	MessageCount       int64
	LastMessagePreview string
}

func NewConversation(id ConversationID, p Participants, listingID, sourceChannel string, now time.Time) (*Conversation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Conversation{
		ID:             id,
		Participants:   p,
		ListingID:      listingID,
		SourceChannel:  sourceChannel,
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

func (c *Conversation) Key() ConversationKey {
	return ConversationKey{
		ListingID:        c.ListingID,
		BuyerID:          c.Participants.BuyerID,
		SellerID:         c.Participants.SellerID,
		InquirerSellerID: c.Participants.InquirerSellerID,
	}
}

// IsSellerToSeller reports whether the thread is a seller inquiring about
// another seller's listing.
func (c *Conversation) IsSellerToSeller() bool {
	return c.Participants.SellerID != "" && c.Participants.InquirerSellerID != ""
}

// HasParticipant checks membership. Sellers match either seller slot.
func (c *Conversation) HasParticipant(a Actor) bool {
	if a.ID == "" {
		return false
	}
	switch a.Kind {
	case KindBuyer:
		return c.Participants.BuyerID == a.ID
	case KindSeller:
		return c.Participants.SellerID == a.ID || c.Participants.InquirerSellerID == a.ID
	case KindStaff:
		return c.Participants.StaffID == a.ID
	}
	return false
}

// BroadcastTargets lists the distinct live channels a new message fans out
// to: buyer, seller and inquirer-seller (when different from the seller).
// Staff dashboards poll; they have no push channel.
func (c *Conversation) BroadcastTargets() []Actor {
	var out []Actor
	if c.Participants.BuyerID != "" {
		out = append(out, Actor{Kind: KindBuyer, ID: c.Participants.BuyerID})
	}
	if c.Participants.SellerID != "" {
		out = append(out, Actor{Kind: KindSeller, ID: c.Participants.SellerID})
	}
	if c.Participants.InquirerSellerID != "" && c.Participants.InquirerSellerID != c.Participants.SellerID {
		out = append(out, Actor{Kind: KindSeller, ID: c.Participants.InquirerSellerID})
	}
	return out
}

// Touch records message activity on the thread.
func (c *Conversation) Touch(now time.Time, preview string) {
	c.LastActivityAt = now.UTC()
	c.MessageCount++
	c.LastMessagePreview = preview
}

// Preview trims message content to a dashboard-sized excerpt.
func Preview(content string) string {
	const max = 120
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	cut := content[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
