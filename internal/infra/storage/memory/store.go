package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"marketchat/internal/domain/chat"
)

// Store keeps conversations and messages in mutex-guarded maps with the
// same semantics as the Mongo store, including the participant-tuple
// uniqueness constraint. It backs tests and single-node dev runs.
type Store struct {
	mu            sync.RWMutex
	conversations map[chat.ConversationID]*chat.Conversation
	byKey         map[string]chat.ConversationID
	messages      map[chat.MessageID]*chat.Message
	byThread      map[chat.ConversationID][]chat.MessageID
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[chat.ConversationID]*chat.Conversation),
		byKey:         make(map[string]chat.ConversationID),
		messages:      make(map[chat.MessageID]*chat.Message),
		byThread:      make(map[chat.ConversationID][]chat.MessageID),
	}
}

// Conversations returns the conversation-side repository view.
func (s *Store) Conversations() chat.ConversationRepository { return conversationRepo{s} }

// Messages returns the message-side repository view.
func (s *Store) Messages() chat.MessageRepository { return messageRepo{s} }

type conversationRepo struct{ s *Store }

var _ chat.ConversationRepository = conversationRepo{}

func (r conversationRepo) Insert(ctx context.Context, conv *chat.Conversation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conv.Key().String()
	if _, exists := s.byKey[key]; exists {
		return chat.ErrDuplicateConversation
	}
	cp := *conv
	s.conversations[conv.ID] = &cp
	s.byKey[key] = conv.ID
	return nil
}

func (r conversationRepo) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (r conversationRepo) ByKey(ctx context.Context, key chat.ConversationKey) (*chat.Conversation, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key.String()]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	cp := *s.conversations[id]
	return &cp, nil
}

func (r conversationRepo) Touch(ctx context.Context, id chat.ConversationID, at time.Time, preview string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	conv.Touch(at, preview)
	return nil
}

func (r conversationRepo) ListByParticipant(ctx context.Context, viewer chat.Actor, limit int, cursor string) ([]*chat.Conversation, string, error) {
	s := r.s
	if limit <= 0 {
		limit = 20
	}
	cursorAt, cursorID, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	// Copy while holding the lock: Touch mutates the stored structs.
	s.mu.RLock()
	matches := make([]*chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(viewer) {
			cp := *conv
			matches = append(matches, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].LastActivityAt.Equal(matches[j].LastActivityAt) {
			return matches[i].LastActivityAt.After(matches[j].LastActivityAt)
		}
		return matches[i].ID > matches[j].ID
	})

	// One past the limit settles whether a next page exists.
	out := make([]*chat.Conversation, 0, limit)
	for _, conv := range matches {
		if cursor != "" && !afterCursorDesc(conv.LastActivityAt, string(conv.ID), cursorAt, cursorID) {
			continue
		}
		out = append(out, conv)
		if len(out) > limit {
			break
		}
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[limit-1]
		next = encodeCursor(last.LastActivityAt, string(last.ID))
	}
	return out, next, nil
}

type messageRepo struct{ s *Store }

var _ chat.MessageRepository = messageRepo{}

func (r messageRepo) Insert(ctx context.Context, msg *chat.Message) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return chat.ErrConversationNotFound
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	s.byThread[msg.ConversationID] = append(s.byThread[msg.ConversationID], msg.ID)
	return nil
}

func (r messageRepo) ByID(ctx context.Context, id chat.MessageID) (*chat.Message, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, chat.ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (r messageRepo) ListByConversation(ctx context.Context, conversationID chat.ConversationID, limit int, cursor string) ([]*chat.Message, string, error) {
	s := r.s
	if limit <= 0 {
		limit = 50
	}
	cursorAt, cursorID, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	// Copy while holding the lock: status updates mutate the stored
	// structs. Append order matches creation order within one conversation.
	s.mu.RLock()
	ids := s.byThread[conversationID]
	ordered := make([]*chat.Message, 0, len(ids))
	for _, id := range ids {
		cp := *s.messages[id]
		ordered = append(ordered, &cp)
	}
	s.mu.RUnlock()

	out := make([]*chat.Message, 0, limit)
	for _, msg := range ordered {
		if cursor != "" && !afterCursorAsc(msg.CreatedAt, string(msg.ID), cursorAt, cursorID) {
			continue
		}
		out = append(out, msg)
		if len(out) > limit {
			break
		}
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[limit-1]
		next = encodeCursor(last.CreatedAt, string(last.ID))
	}
	return out, next, nil
}

func (r messageRepo) MarkDelivered(ctx context.Context, id chat.MessageID, at time.Time) (*chat.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, chat.ErrMessageNotFound
	}
	msg.MarkDelivered(at)
	cp := *msg
	return &cp, nil
}

func (r messageRepo) MarkRead(ctx context.Context, id chat.MessageID, at time.Time) (*chat.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, chat.ErrMessageNotFound
	}
	msg.MarkRead(at)
	cp := *msg
	return &cp, nil
}

func (r messageRepo) MarkConversationRead(ctx context.Context, conversationID chat.ConversationID, filter chat.UnreadFilter, at time.Time) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return 0, chat.ErrConversationNotFound
	}
	var advanced int64
	for _, id := range s.byThread[conversationID] {
		msg := s.messages[id]
		if filter.Matches(msg) && msg.MarkRead(at) {
			advanced++
		}
	}
	return advanced, nil
}

func (r messageRepo) SetExternalRef(ctx context.Context, id chat.MessageID, ref string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return false, chat.ErrMessageNotFound
	}
	return msg.SetExternalRef(ref), nil
}

func (r messageRepo) CountUnread(ctx context.Context, conversationID chat.ConversationID, filter chat.UnreadFilter) (int64, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, id := range s.byThread[conversationID] {
		if filter.Matches(s.messages[id]) {
			count++
		}
	}
	return count, nil
}

// Cursors encode (timestamp, id) so pagination survives timestamp ties.
func encodeCursor(at time.Time, id string) string {
	return at.UTC().Format(time.RFC3339Nano) + "|" + id
}

func decodeCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
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

func afterCursorDesc(at time.Time, id string, cursorAt time.Time, cursorID string) bool {
	if at.Before(cursorAt) {
		return true
	}
	return at.Equal(cursorAt) && id < cursorID
}

func afterCursorAsc(at time.Time, id string, cursorAt time.Time, cursorID string) bool {
	if at.After(cursorAt) {
		return true
	}
	return at.Equal(cursorAt) && id > cursorID
}
