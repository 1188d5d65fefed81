package dto

import "time"

// ConversationParticipants lists the filled participant slots.
type ConversationParticipants struct {
	BuyerID          string `json:"buyer_id,omitempty"`
	SellerID         string `json:"seller_id,omitempty"`
	InquirerSellerID string `json:"inquirer_seller_id,omitempty"`
	StaffID          string `json:"staff_id,omitempty"`
}

// Conversation describes chat metadata for dashboards.
type Conversation struct {
	ID                 string                   `json:"id"`
	ListingID          string                   `json:"listing_id,omitempty"`
	Participants       ConversationParticipants `json:"participants"`
	SourceChannel      string                   `json:"source_channel,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	LastActivityAt     time.Time                `json:"last_activity_at"`
	MessageCount       int64                    `json:"message_count"`
	LastMessagePreview string                   `json:"last_message_preview,omitempty"`
	HasUnread          bool                     `json:"has_unread,omitempty"`
}

// ConversationList is a paginated collection.
type ConversationList struct {
	Items      []Conversation `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
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

// ChatMessageList is a paginated message list.
type ChatMessageList struct {
	Items      []ChatMessage `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// UnreadBadge is a viewer's aggregate unread state. Total sums unread
// messages across conversations; ConversationsWithUnread counts threads
// that have at least one.
type UnreadBadge struct {
	Total                   int64 `json:"total"`
	ConversationsWithUnread int   `json:"conversations_with_unread"`
}
