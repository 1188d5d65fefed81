package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/chat"
)

// Store persists conversations and messages in Mongo. The compound unique
// index on the participant tuple is the one strong-consistency point of
// the core: concurrent first-contact inserts collapse onto one row via a
// duplicate-key error that callers resolve by re-querying.
type Store struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

// EnsureIndexes creates the uniqueness and paging indexes. Run at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "listing_id", Value: 1},
				{Key: "buyer_id", Value: 1},
				{Key: "seller_id", Value: 1},
				{Key: "inquirer_seller_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("participant_tuple"),
		},
		{Keys: bson.D{{Key: "last_activity_at", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "read_at", Value: 1}}},
	})
	return err
}

func (s *Store) Conversations() chat.ConversationRepository { return conversationRepo{s.conversations} }
func (s *Store) Messages() chat.MessageRepository           { return messageRepo{s.messages} }

type conversationDoc struct {
	ID                 string    `bson:"_id"`
	ListingID          string    `bson:"listing_id"`
	BuyerID            string    `bson:"buyer_id"`
	SellerID           string    `bson:"seller_id"`
	InquirerSellerID   string    `bson:"inquirer_seller_id"`
	StaffID            string    `bson:"staff_id"`
	SourceChannel      string    `bson:"source_channel,omitempty"`
	CreatedAt          time.Time `bson:"created_at"`
	LastActivityAt     time.Time `bson:"last_activity_at"`
	MessageCount       int64     `bson:"message_count"`
	LastMessagePreview string    `bson:"last_message_preview,omitempty"`
}

func toConversationDoc(c *chat.Conversation) conversationDoc {
	return conversationDoc{
		ID:                 string(c.ID),
		ListingID:          c.ListingID,
		BuyerID:            c.Participants.BuyerID,
		SellerID:           c.Participants.SellerID,
		InquirerSellerID:   c.Participants.InquirerSellerID,
		StaffID:            c.Participants.StaffID,
		SourceChannel:      c.SourceChannel,
		CreatedAt:          c.CreatedAt,
		LastActivityAt:     c.LastActivityAt,
		MessageCount:       c.MessageCount,
		LastMessagePreview: c.LastMessagePreview,
	}
}

func (d conversationDoc) toDomain() *chat.Conversation {
	return &chat.Conversation{
		ID: chat.ConversationID(d.ID),
		Participants: chat.Participants{
			BuyerID:          d.BuyerID,
			SellerID:         d.SellerID,
			InquirerSellerID: d.InquirerSellerID,
			StaffID:          d.StaffID,
		},
		ListingID:          d.ListingID,
		SourceChannel:      d.SourceChannel,
		CreatedAt:          d.CreatedAt,
		LastActivityAt:     d.LastActivityAt,
		MessageCount:       d.MessageCount,
		LastMessagePreview: d.LastMessagePreview,
	}
}

type conversationRepo struct {
	col *mongo.Collection
}

var _ chat.ConversationRepository = conversationRepo{}

func (r conversationRepo) Insert(ctx context.Context, conv *chat.Conversation) error {
	_, err := r.col.InsertOne(ctx, toConversationDoc(conv))
	if mongo.IsDuplicateKeyError(err) {
		return chat.ErrDuplicateConversation
	}
	return err
}

func (r conversationRepo) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	var doc conversationDoc
	err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r conversationRepo) ByKey(ctx context.Context, key chat.ConversationKey) (*chat.Conversation, error) {
	var doc conversationDoc
	err := r.col.FindOne(ctx, bson.M{
		"listing_id":         key.ListingID,
		"buyer_id":           key.BuyerID,
		"seller_id":          key.SellerID,
		"inquirer_seller_id": key.InquirerSellerID,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r conversationRepo) Touch(ctx context.Context, id chat.ConversationID, at time.Time, preview string) error {
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{
		"$set": bson.M{"last_activity_at": at.UTC(), "last_message_preview": preview},
		"$inc": bson.M{"message_count": 1},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

func (r conversationRepo) ListByParticipant(ctx context.Context, viewer chat.Actor, limit int, cursor string) ([]*chat.Conversation, string, error) {
	if limit <= 0 {
		limit = 20
	}
	filter, err := participantFilter(viewer)
	if err != nil {
		return nil, "", err
	}
	if cursor != "" {
		at, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		filter["$or"] = bson.A{
			bson.M{"last_activity_at": bson.M{"$lt": at}},
			bson.M{"last_activity_at": at, "_id": bson.M{"$lt": id}},
		}
	}
	// One past the limit settles whether a next page exists.
	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit + 1))
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, "", err
	}
	defer cur.Close(ctx)

	var out []*chat.Conversation
	for cur.Next(ctx) {
		var doc conversationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, "", err
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[limit-1]
		next = encodeCursor(last.LastActivityAt, string(last.ID))
	}
	return out, next, nil
}

func participantFilter(viewer chat.Actor) (bson.M, error) {
	switch viewer.Kind {
	case chat.KindBuyer:
		return bson.M{"buyer_id": viewer.ID}, nil
	case chat.KindSeller:
		return bson.M{"$or": bson.A{
			bson.M{"seller_id": viewer.ID},
			bson.M{"inquirer_seller_id": viewer.ID},
		}}, nil
	case chat.KindStaff:
		return bson.M{"staff_id": viewer.ID}, nil
	}
	return nil, chat.ErrInvalidSender
}

type messageDoc struct {
	ID             string     `bson:"_id"`
	ConversationID string     `bson:"conversation_id"`
	SenderKind     string     `bson:"sender_kind"`
	SenderID       string     `bson:"sender_id"`
	SenderName     string     `bson:"sender_name,omitempty"`
	Content        string     `bson:"content"`
	ListingID      string     `bson:"listing_id,omitempty"`
	ProductContext string     `bson:"product_context,omitempty"`
	Status         string     `bson:"status"`
	CreatedAt      time.Time  `bson:"created_at"`
	DeliveredAt    *time.Time `bson:"delivered_at,omitempty"`
	ReadAt         *time.Time `bson:"read_at,omitempty"`
	ExternalRef    string     `bson:"external_ref,omitempty"`
}

func toMessageDoc(m *chat.Message) messageDoc {
	doc := messageDoc{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderKind:     string(m.Sender.Kind),
		SenderID:       m.Sender.ID,
		SenderName:     m.SenderName,
		Content:        m.Content,
		ListingID:      m.ListingID,
		ProductContext: m.ProductContext,
		Status:         string(m.Status),
		CreatedAt:      m.CreatedAt,
		ExternalRef:    m.ExternalRef,
	}
	if !m.DeliveredAt.IsZero() {
		at := m.DeliveredAt
		doc.DeliveredAt = &at
	}
	if !m.ReadAt.IsZero() {
		at := m.ReadAt
		doc.ReadAt = &at
	}
	return doc
}

func (d messageDoc) toDomain() *chat.Message {
	m := &chat.Message{
		ID:             chat.MessageID(d.ID),
		ConversationID: chat.ConversationID(d.ConversationID),
		Sender:         chat.Actor{Kind: chat.ActorKind(d.SenderKind), ID: d.SenderID},
		SenderName:     d.SenderName,
		Content:        d.Content,
		ListingID:      d.ListingID,
		ProductContext: d.ProductContext,
		Status:         chat.MessageStatus(d.Status),
		CreatedAt:      d.CreatedAt,
		ExternalRef:    d.ExternalRef,
	}
	if d.DeliveredAt != nil {
		m.DeliveredAt = *d.DeliveredAt
	}
	if d.ReadAt != nil {
		m.ReadAt = *d.ReadAt
	}
	return m
}

type messageRepo struct {
	col *mongo.Collection
}

var _ chat.MessageRepository = messageRepo{}

func (r messageRepo) Insert(ctx context.Context, msg *chat.Message) error {
	_, err := r.col.InsertOne(ctx, toMessageDoc(msg))
	return err
}

func (r messageRepo) ByID(ctx context.Context, id chat.MessageID) (*chat.Message, error) {
	var doc messageDoc
	err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, chat.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r messageRepo) ListByConversation(ctx context.Context, conversationID chat.ConversationID, limit int, cursor string) ([]*chat.Message, string, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"conversation_id": string(conversationID)}
	if cursor != "" {
		at, id, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$gt": at}},
			bson.M{"created_at": at, "_id": bson.M{"$gt": id}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit + 1))
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, "", err
	}
	defer cur.Close(ctx)

	var out []*chat.Message
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, "", err
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[limit-1]
		next = encodeCursor(last.CreatedAt, string(last.ID))
	}
	return out, next, nil
}

// MarkDelivered advances sent → delivered with a guarded update so repeat
// receipts and receipts arriving after a read are no-ops.
func (r messageRepo) MarkDelivered(ctx context.Context, id chat.MessageID, at time.Time) (*chat.Message, error) {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id), "status": string(chat.StatusSent)},
		bson.M{"$set": bson.M{"status": string(chat.StatusDelivered), "delivered_at": at.UTC()}},
	)
	if err != nil {
		return nil, err
	}
	return r.ByID(ctx, id)
}

// MarkRead advances to read, backfilling delivered_at when no receipt ever
// landed.
func (r messageRepo) MarkRead(ctx context.Context, id chat.MessageID, at time.Time) (*chat.Message, error) {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id), "read_at": nil},
		readPipeline(at),
	)
	if err != nil {
		return nil, err
	}
	return r.ByID(ctx, id)
}

func (r messageRepo) MarkConversationRead(ctx context.Context, conversationID chat.ConversationID, filter chat.UnreadFilter, at time.Time) (int64, error) {
	match := bson.M{"conversation_id": string(conversationID), "read_at": nil}
	if filter.ExcludeSenderID != "" {
		match["sender_id"] = bson.M{"$ne": filter.ExcludeSenderID}
	} else {
		kinds := make(bson.A, 0, len(filter.SenderKinds))
		for _, k := range filter.SenderKinds {
			kinds = append(kinds, string(k))
		}
		match["sender_kind"] = bson.M{"$in": kinds}
	}
	res, err := r.col.UpdateMany(ctx, match, readPipeline(at))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// readPipeline sets read status while keeping an existing delivered_at.
func readPipeline(at time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "status", Value: string(chat.StatusRead)},
			{Key: "read_at", Value: at.UTC()},
			{Key: "delivered_at", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$delivered_at", at.UTC()}}}},
		}}},
	}
}

func (r messageRepo) SetExternalRef(ctx context.Context, id chat.MessageID, ref string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id), "external_ref": bson.M{"$in": bson.A{"", nil}}},
		bson.M{"$set": bson.M{"external_ref": ref}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, chat.ErrMessageNotFound
	}
	return false, nil
}

func (r messageRepo) CountUnread(ctx context.Context, conversationID chat.ConversationID, filter chat.UnreadFilter) (int64, error) {
	match := bson.M{"conversation_id": string(conversationID), "read_at": nil}
	if filter.ExcludeSenderID != "" {
		match["sender_id"] = bson.M{"$ne": filter.ExcludeSenderID}
	} else {
		kinds := make(bson.A, 0, len(filter.SenderKinds))
		for _, k := range filter.SenderKinds {
			kinds = append(kinds, string(k))
		}
		match["sender_kind"] = bson.M{"$in": kinds}
	}
	return r.col.CountDocuments(ctx, match)
}

// Cursors encode (timestamp, id) so pagination survives timestamp ties.
func encodeCursor(at time.Time, id string) string {
	return at.UTC().Format(time.RFC3339Nano) + "|" + id
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, id, found := strings.Cut(cursor, "|")
	if !found {
		return time.Time{}, "", chat.ErrInvalidCursor
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, "", chat.ErrInvalidCursor
	}
	return at, id, nil
}
