package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	chatapp "marketchat/internal/app/chat"
	"marketchat/internal/app/dto"
	"marketchat/internal/domain/chat"
)

// PresenceWriter lets the connection-holding gateway record liveness.
type PresenceWriter interface {
	Mark(ctx context.Context, actor chat.Actor) error
	Clear(ctx context.Context, actor chat.Actor) error
}

// ChatHandler bridges HTTP with the conversation service.
type ChatHandler struct {
	Service  *chatapp.Service
	Unread   *chatapp.UnreadAggregator
	Presence PresenceWriter
	Logger   *slog.Logger
}

var _ ChatHTTP = (*ChatHandler)(nil)

// CreateConversation finds or creates the thread for a participant tuple.
// Re-contacting about the same listing with the same parties returns the
// existing thread.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		BuyerID          string `json:"buyer_id"`
		SellerID         string `json:"seller_id"`
		InquirerSellerID string `json:"inquirer_seller_id"`
		StaffID          string `json:"staff_id"`
		ListingID        string `json:"listing_id"`
		SourceChannel    string `json:"source_channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	participants := chat.Participants{
		BuyerID:          strings.TrimSpace(req.BuyerID),
		SellerID:         strings.TrimSpace(req.SellerID),
		InquirerSellerID: strings.TrimSpace(req.InquirerSellerID),
		StaffID:          strings.TrimSpace(req.StaffID),
	}
	if p.Actor.Kind != chat.KindStaff && !participantOf(participants, p.Actor) {
		c.JSON(http.StatusForbidden, gin.H{"error": "caller must be a participant"})
		return
	}
	conv, err := h.Service.FindOrCreateConversation(c.Request.Context(), chatapp.FindOrCreateInput{
		Participants:  participants,
		ListingID:     strings.TrimSpace(req.ListingID),
		SourceChannel: strings.TrimSpace(req.SourceChannel),
	})
	if err != nil {
		h.respondError(c, err, "find or create conversation")
		return
	}
	c.JSON(http.StatusOK, h.conversationDTO(c, conv, p.Actor))
}

// ListMyConversations pages the caller's threads, latest activity first.
func (h *ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	limit := parsePositiveInt(c.Query("limit"), 20)
	convs, next, err := h.Service.ListConversations(c.Request.Context(), p.Actor, limit, c.Query("cursor"))
	if err != nil {
		h.respondError(c, err, "list conversations")
		return
	}
	collection := dto.ConversationList{
		Items:      make([]dto.Conversation, 0, len(convs)),
		NextCursor: next,
	}
	for _, conv := range convs {
		collection.Items = append(collection.Items, h.conversationDTO(c, conv, p.Actor))
	}
	c.JSON(http.StatusOK, collection)
}

// ListMessages pages a thread's history for a participant.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := chat.ConversationID(c.Param("id"))
	limit := parsePositiveInt(c.Query("limit"), 50)
	messages, next, err := h.Service.ListMessages(c.Request.Context(), conversationID, p.Actor, limit, c.Query("cursor"))
	if err != nil {
		h.respondError(c, err, "list messages")
		return
	}
	collection := dto.ChatMessageList{
		Items:      make([]dto.ChatMessage, 0, len(messages)),
		NextCursor: next,
	}
	for _, msg := range messages {
		collection.Items = append(collection.Items, messageDTO(msg))
	}
	c.JSON(http.StatusOK, collection)
}

// SendMessage appends a message; the response confirms the durable write
// regardless of downstream delivery or notification health.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req struct {
		Content   string `json:"content"`
		ListingID string `json:"listing_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Service.SendMessage(c.Request.Context(), chatapp.SendMessageInput{
		ConversationID: chat.ConversationID(c.Param("id")),
		Sender:         p.Actor,
		SenderName:     p.Name,
		Content:        req.Content,
		ListingID:      strings.TrimSpace(req.ListingID),
	})
	if err != nil {
		h.respondError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, messageDTO(msg))
}

// MarkRead marks the caller's unread inbound messages in a thread read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	count, err := h.Service.MarkConversationRead(c.Request.Context(), chat.ConversationID(c.Param("id")), p.Actor)
	if err != nil {
		h.respondError(c, err, "mark read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": count})
}

// UnreadBadge returns the caller's badge total and the number of threads
// with unread messages.
func (h *ChatHandler) UnreadBadge(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	summary, err := h.Unread.CountFor(c.Request.Context(), p.Actor)
	if err != nil {
		h.respondError(c, err, "unread badge")
		return
	}
	c.JSON(http.StatusOK, dto.UnreadBadge{
		Total:                   summary.Total,
		ConversationsWithUnread: summary.ConversationsWithUnread,
	})
}

// Heartbeat refreshes the caller's presence entry for the registry TTL.
// The live gateway calls it while a connection is open.
func (h *ChatHandler) Heartbeat(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.Presence.Mark(c.Request.Context(), p.Actor); err != nil {
		h.respondError(c, err, "presence heartbeat")
		return
	}
	c.Status(http.StatusNoContent)
}

// Offline clears the caller's presence entry on disconnect; TTL expiry
// covers gateways that never get to call it.
func (h *ChatHandler) Offline(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	if err := h.Presence.Clear(c.Request.Context(), p.Actor); err != nil {
		h.respondError(c, err, "presence clear")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) conversationDTO(c *gin.Context, conv *chat.Conversation, viewer chat.Actor) dto.Conversation {
	out := dto.Conversation{
		ID:        string(conv.ID),
		ListingID: conv.ListingID,
		Participants: dto.ConversationParticipants{
			BuyerID:          conv.Participants.BuyerID,
			SellerID:         conv.Participants.SellerID,
			InquirerSellerID: conv.Participants.InquirerSellerID,
			StaffID:          conv.Participants.StaffID,
		},
		SourceChannel:      conv.SourceChannel,
		CreatedAt:          conv.CreatedAt,
		LastActivityAt:     conv.LastActivityAt,
		MessageCount:       conv.MessageCount,
		LastMessagePreview: conv.LastMessagePreview,
	}
	if h.Unread != nil {
		count, err := h.Unread.CountForConversation(c.Request.Context(), viewer, conv.ID)
		if err != nil {
			h.Logger.Warn("unread lookup failed", "conversation_id", conv.ID, "error", err)
		}
		out.HasUnread = count > 0
	}
	return out
}

func messageDTO(msg *chat.Message) dto.ChatMessage {
	out := dto.ChatMessage{
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
		out.DeliveredAt = &at
	}
	if !msg.ReadAt.IsZero() {
		at := msg.ReadAt
		out.ReadAt = &at
	}
	return out
}

func (h *ChatHandler) respondError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrInvalidParticipants),
		errors.Is(err, chat.ErrInvalidSender),
		errors.Is(err, chat.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, chat.ErrParticipantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat call failed", "action", action, "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func participantOf(p chat.Participants, actor chat.Actor) bool {
	switch actor.Kind {
	case chat.KindBuyer:
		return p.BuyerID == actor.ID
	case chat.KindSeller:
		return p.SellerID == actor.ID || p.InquirerSellerID == actor.ID
	case chat.KindStaff:
		return p.StaffID == actor.ID
	}
	return false
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}
