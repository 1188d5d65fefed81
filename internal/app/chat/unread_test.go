package chatapp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/chat"
	memorystore "marketchat/internal/infra/storage/memory"
)

func addMessage(t *testing.T, store *memorystore.Store, id chat.MessageID, conv *chat.Conversation, sender chat.Actor) *chat.Message {
	t.Helper()
	msg, err := chat.NewMessage(id, conv.ID, sender, "", "hello", "", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Messages().Insert(context.Background(), msg))
	return msg
}

func TestCountForSumsAcrossConversations(t *testing.T) {
	store := memorystore.NewStore()
	ctx := context.Background()
	seller := chat.Actor{Kind: chat.KindSeller, ID: "s1"}
	u := &UnreadAggregator{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Publisher:     &fakePublisher{},
		Logger:        testLogger(),
	}

	// Thread one: three unread buyer messages.
	one, err := chat.NewConversation("c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Conversations().Insert(ctx, one))
	addMessage(t, store, "m1", one, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})
	addMessage(t, store, "m2", one, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})
	addMessage(t, store, "m3", one, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})

	// Thread two: only the seller's own message, which never counts.
	two, err := chat.NewConversation("c2", chat.Participants{BuyerID: "b2", SellerID: "s1"}, "l2", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Conversations().Insert(ctx, two))
	addMessage(t, store, "m4", two, seller)

	summary, err := u.CountFor(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Total)
	assert.Equal(t, 1, summary.ConversationsWithUnread)
}

func TestCountForReflectsReads(t *testing.T) {
	store := memorystore.NewStore()
	ctx := context.Background()
	seller := chat.Actor{Kind: chat.KindSeller, ID: "s1"}
	u := &UnreadAggregator{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Publisher:     &fakePublisher{},
		Logger:        testLogger(),
	}

	conv, err := chat.NewConversation("c1", chat.Participants{BuyerID: "b1", SellerID: "s1"}, "l1", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	msg := addMessage(t, store, "m1", conv, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})

	count, err := u.CountForConversation(ctx, seller, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = store.Messages().MarkRead(ctx, msg.ID, time.Now())
	require.NoError(t, err)

	count, err = u.CountForConversation(ctx, seller, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSellerToSellerCountsExcludeOwnMessages(t *testing.T) {
	store := memorystore.NewStore()
	ctx := context.Background()
	u := &UnreadAggregator{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Publisher:     &fakePublisher{},
		Logger:        testLogger(),
	}

	conv, err := chat.NewConversation("c1", chat.Participants{SellerID: "s1", InquirerSellerID: "s2"}, "l1", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	addMessage(t, store, "m1", conv, chat.Actor{Kind: chat.KindSeller, ID: "s1"})
	addMessage(t, store, "m2", conv, chat.Actor{Kind: chat.KindSeller, ID: "s2"})

	owner, err := u.CountForConversation(ctx, chat.Actor{Kind: chat.KindSeller, ID: "s1"}, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), owner)

	inquirer, err := u.CountForConversation(ctx, chat.Actor{Kind: chat.KindSeller, ID: "s2"}, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inquirer)
}

func TestRefreshPublishesPerParticipant(t *testing.T) {
	store := memorystore.NewStore()
	ctx := context.Background()
	publisher := &fakePublisher{}
	u := &UnreadAggregator{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Publisher:     publisher,
		Logger:        testLogger(),
	}

	conv, err := chat.NewConversation("c1", chat.Participants{BuyerID: "b1", SellerID: "s1", StaffID: "st1"}, "l1", "", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Conversations().Insert(ctx, conv))
	msg := addMessage(t, store, "m1", conv, chat.Actor{Kind: chat.KindBuyer, ID: "b1"})

	require.NoError(t, u.Refresh(ctx, conv.ID, msg.ID))

	events := publisher.byType(EventUnreadChanged)
	require.Len(t, events, 3)
	counts := map[string]int64{}
	for _, p := range events {
		require.NotNil(t, p.event.Unread)
		counts[p.channel] = p.event.Unread.Count
	}
	assert.Equal(t, int64(0), counts["buyer:b1"])
	assert.Equal(t, int64(1), counts["seller:s1"])
	assert.Equal(t, int64(1), counts["staff:st1"])
}
