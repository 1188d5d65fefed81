package chatapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"marketchat/internal/domain/chat"
)

// UnreadAggregator computes role-aware unread counts. The badge total is
// the sum of per-conversation counts, not the number of conversations with
// unread; both are exposed because dashboards show both.
type UnreadAggregator struct {
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Publisher     EventPublisher
	Logger        *slog.Logger
}

// pageSize bounds the per-query fetch while walking a viewer's threads.
const pageSize = 200

// UnreadSummary is a viewer's aggregate unread state.
type UnreadSummary struct {
	Total                   int64
	ConversationsWithUnread int
}

// CountFor sums unread counts across every conversation the viewer
// participates in.
func (u *UnreadAggregator) CountFor(ctx context.Context, viewer chat.Actor) (UnreadSummary, error) {
	var summary UnreadSummary
	cursor := ""
	for {
		convs, next, err := u.Conversations.ListByParticipant(ctx, viewer, pageSize, cursor)
		if err != nil {
			return UnreadSummary{}, err
		}
		for _, conv := range convs {
			count, err := u.countConversation(ctx, viewer, conv)
			if err != nil {
				return UnreadSummary{}, err
			}
			summary.Total += count
			if count > 0 {
				summary.ConversationsWithUnread++
			}
		}
		if next == "" {
			return summary, nil
		}
		cursor = next
	}
}

// CountForConversation returns a viewer's unread count in one thread.
func (u *UnreadAggregator) CountForConversation(ctx context.Context, viewer chat.Actor, id chat.ConversationID) (int64, error) {
	conv, err := u.Conversations.ByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return u.countConversation(ctx, viewer, conv)
}

func (u *UnreadAggregator) countConversation(ctx context.Context, viewer chat.Actor, conv *chat.Conversation) (int64, error) {
	filter, ok := chat.UnreadFilterFor(viewer, conv)
	if !ok {
		return 0, nil
	}
	return u.Messages.CountUnread(ctx, conv.ID, filter)
}

// Refresh recomputes every participant's counter for the thread and pushes
// an unread_changed event to their channel. Partial failures are collected
// so the caller can decide to retry via the job queue.
func (u *UnreadAggregator) Refresh(ctx context.Context, id chat.ConversationID, _ chat.MessageID) error {
	conv, err := u.Conversations.ByID(ctx, id)
	if err != nil {
		return err
	}
	var errs []error
	for _, viewer := range conv.Participants.Actors() {
		count, err := u.countConversation(ctx, viewer, conv)
		if err != nil {
			errs = append(errs, fmt.Errorf("count for %s: %w", viewer.ChannelKey(), err))
			continue
		}
		event := Event{
			Type:           EventUnreadChanged,
			ConversationID: string(conv.ID),
			Unread: &UnreadPayload{
				ViewerKind: string(viewer.Kind),
				ViewerID:   viewer.ID,
				Count:      count,
			},
		}
		if err := u.Publisher.Publish(ctx, viewer.ChannelKey(), event); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", viewer.ChannelKey(), err))
		}
	}
	return errors.Join(errs...)
}
