package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/chat"
)

func newConversation(t *testing.T, id chat.ConversationID, p chat.Participants, listingID string, at time.Time) *chat.Conversation {
	t.Helper()
	conv, err := chat.NewConversation(id, p, listingID, "", at)
	require.NoError(t, err)
	return conv
}

func TestInsertEnforcesParticipantTuple(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := chat.Participants{BuyerID: "b1", SellerID: "s1"}

	require.NoError(t, store.Conversations().Insert(ctx, newConversation(t, "c1", p, "l1", time.Now())))

	err := store.Conversations().Insert(ctx, newConversation(t, "c2", p, "l1", time.Now()))
	assert.ErrorIs(t, err, chat.ErrDuplicateConversation)

	// A different listing is a different thread.
	require.NoError(t, store.Conversations().Insert(ctx, newConversation(t, "c3", p, "l2", time.Now())))
}

// Concurrent first contact: exactly one insert wins, every loser converges
// on the winner's row via the duplicate error plus re-query.
func TestConcurrentInsertConvergesOnOneRow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	p := chat.Participants{BuyerID: "b1", SellerID: "s1"}
	key := chat.ConversationKey{ListingID: "l1", BuyerID: "b1", SellerID: "s1"}

	var wg sync.WaitGroup
	ids := make(chan chat.ConversationID, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := chat.NewConversation(chat.ConversationID(fmt.Sprintf("c%d", i)), p, "l1", "", time.Now())
			if !assert.NoError(t, err) {
				return
			}
			if err := store.Conversations().Insert(ctx, conv); err != nil {
				if !assert.ErrorIs(t, err, chat.ErrDuplicateConversation) {
					return
				}
				existing, err := store.Conversations().ByKey(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				ids <- existing.ID
				return
			}
			ids <- conv.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[chat.ConversationID]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)
}

func TestListByParticipantOrdersAndPaginates(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	viewer := chat.Actor{Kind: chat.KindSeller, ID: "s1"}

	for i := 0; i < 5; i++ {
		conv := newConversation(t, chat.ConversationID(fmt.Sprintf("c%d", i)), chat.Participants{
			BuyerID:  fmt.Sprintf("b%d", i),
			SellerID: "s1",
		}, "l1", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.Conversations().Insert(ctx, conv))
	}
	other := newConversation(t, "cx", chat.Participants{BuyerID: "b9", SellerID: "s2"}, "l1", base)
	require.NoError(t, store.Conversations().Insert(ctx, other))

	first, cursor, err := store.Conversations().ListByParticipant(ctx, viewer, 3, "")
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, chat.ConversationID("c4"), first[0].ID)
	assert.Equal(t, chat.ConversationID("c2"), first[2].ID)
	require.NotEmpty(t, cursor)

	rest, next, err := store.Conversations().ListByParticipant(ctx, viewer, 3, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, chat.ConversationID("c1"), rest[0].ID)
	assert.Equal(t, chat.ConversationID("c0"), rest[1].ID)
	assert.Empty(t, next)

	_, _, err = store.Conversations().ListByParticipant(ctx, viewer, 3, "garbage")
	assert.ErrorIs(t, err, chat.ErrInvalidCursor)
}

func seedMessages(t *testing.T, store *Store, conv *chat.Conversation, n int, sender chat.Actor) []*chat.Message {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	out := make([]*chat.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := chat.NewMessage(chat.MessageID(fmt.Sprintf("m%d", i)), conv.ID, sender, "", fmt.Sprintf("msg %d", i), "", "", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, store.Messages().Insert(ctx, msg))
		out = append(out, msg)
	}
	return out
}

func TestListByConversationPaginatesInOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	conv := newConversation(t, "c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", time.Now())
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	seedMessages(t, store, conv, 5, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})

	first, cursor, err := store.Messages().ListByConversation(ctx, conv.ID, 3, "")
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "msg 0", first[0].Content)
	require.NotEmpty(t, cursor)

	rest, next, err := store.Messages().ListByConversation(ctx, conv.ID, 3, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "msg 3", rest[0].Content)
	assert.Equal(t, "msg 4", rest[1].Content)
	assert.Empty(t, next)
}

func TestMessageInsertRequiresConversation(t *testing.T) {
	store := NewStore()
	msg, err := chat.NewMessage("m1", "missing", chat.Actor{Kind: chat.KindBuyer, ID: "b1"}, "", "hi", "", "", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, store.Messages().Insert(context.Background(), msg), chat.ErrConversationNotFound)
}

func TestMarkConversationReadAppliesFilter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	conv := newConversation(t, "c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", time.Now())
	require.NoError(t, store.Conversations().Insert(ctx, conv))

	seedMessages(t, store, conv, 3, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})
	own, err := chat.NewMessage("own", conv.ID, chat.Actor{Kind: chat.KindSeller, ID: "s1"}, "", "mine", "", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Messages().Insert(ctx, own))

	filter, ok := chat.UnreadFilterFor(chat.Actor{Kind: chat.KindSeller, ID: "s1"}, conv)
	require.True(t, ok)

	advanced, err := store.Messages().MarkConversationRead(ctx, conv.ID, filter, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), advanced)

	count, err := store.Messages().CountUnread(ctx, conv.ID, filter)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The seller's own message is untouched.
	stored, err := store.Messages().ByID(ctx, own.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsUnread())

	again, err := store.Messages().MarkConversationRead(ctx, conv.ID, filter, time.Now())
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestStatusUpdatesAreForwardOnly(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	conv := newConversation(t, "c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", time.Now())
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	msgs := seedMessages(t, store, conv, 1, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})
	id := msgs[0].ID

	read, err := store.Messages().MarkRead(ctx, id, time.Now())
	require.NoError(t, err)
	assert.Equal(t, chat.StatusRead, read.Status)
	assert.False(t, read.DeliveredAt.IsZero())

	// A late delivery receipt never regresses the status.
	after, err := store.Messages().MarkDelivered(ctx, id, time.Now())
	require.NoError(t, err)
	assert.Equal(t, chat.StatusRead, after.Status)
}

func TestSetExternalRefIsSetOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	conv := newConversation(t, "c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", time.Now())
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	msgs := seedMessages(t, store, conv, 1, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})

	ok, err := store.Messages().SetExternalRef(ctx, msgs[0].ID, "tg-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Messages().SetExternalRef(ctx, msgs[0].ID, "tg-2")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := store.Messages().ByID(ctx, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "tg-1", stored.ExternalRef)
}

// Listing snapshots rows under the lock, so concurrent status updates and
// activity touches never mutate what a reader is sorting or copying.
func TestListIsSafeDuringConcurrentWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	viewer := chat.Actor{Kind: chat.KindSeller, ID: "s1"}
	conv := newConversation(t, "c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", time.Now())
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	msgs := seedMessages(t, store, conv, 1, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if !assert.NoError(t, store.Conversations().Touch(ctx, conv.ID, time.Now(), "p")) {
				return
			}
			if _, err := store.Messages().MarkDelivered(ctx, msgs[0].ID, time.Now()); !assert.NoError(t, err) {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if _, _, err := store.Conversations().ListByParticipant(ctx, viewer, 10, ""); !assert.NoError(t, err) {
				return
			}
			if _, _, err := store.Messages().ListByConversation(ctx, conv.ID, 10, ""); !assert.NoError(t, err) {
				return
			}
		}
	}()
	wg.Wait()
}

// An exactly-full final page ends pagination; clients never fetch a
// trailing empty page to learn the cursor is spent.
func TestExactlyFullFinalPageEndsPagination(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	viewer := chat.Actor{Kind: chat.KindSeller, ID: "s1"}

	for i := 0; i < 4; i++ {
		conv := newConversation(t, chat.ConversationID(fmt.Sprintf("c%d", i)), chat.Participants{
			BuyerID:  fmt.Sprintf("b%d", i),
			SellerID: "s1",
		}, "l1", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, store.Conversations().Insert(ctx, conv))
	}

	first, cursor, err := store.Conversations().ListByParticipant(ctx, viewer, 2, "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotEmpty(t, cursor)

	rest, next, err := store.Conversations().ListByParticipant(ctx, viewer, 2, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Empty(t, next)

	conv := newConversation(t, "cm", chat.Participants{BuyerID: "b9", SellerID: "s9"}, "l2", base)
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	seedMessages(t, store, conv, 4, chat.Actor{Kind: chat.KindBuyer, ID: "b9"})

	page, msgCursor, err := store.Messages().ListByConversation(ctx, conv.ID, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, msgCursor)

	tail, msgNext, err := store.Messages().ListByConversation(ctx, conv.ID, 2, msgCursor)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Empty(t, msgNext)
}

// Returned rows are copies; mutating them must not leak into the store.
func TestReadsReturnCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	conv := newConversation(t, "c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", time.Now())
	require.NoError(t, store.Conversations().Insert(ctx, conv))

	got, err := store.Conversations().ByID(ctx, conv.ID)
	require.NoError(t, err)
	got.ListingID = "mutated"

	fresh, err := store.Conversations().ByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "l1", fresh.ListingID)
}
