package chatapp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/domain/chat"
	memorystore "marketchat/internal/infra/storage/memory"
)

func newIngest(t *testing.T) (*ChatAppIngest, *memorystore.Store) {
	t.Helper()
	store := memorystore.NewStore()
	svc := &Service{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Directory:     fakeDirectory{},
		Catalog:       fakeCatalog{},
		Logger:        testLogger(),
	}
	return &ChatAppIngest{Service: svc, Dedup: &fakeDedup{}, Logger: testLogger()}, store
}

func inboundPayload(t *testing.T, in ChatAppInbound) []byte {
	t.Helper()
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	return raw
}

func TestIngestCreatesChatAppSourcedThread(t *testing.T) {
	g, store := newIngest(t)
	ctx := context.Background()

	payload := inboundPayload(t, ChatAppInbound{
		ExternalRef: "tg-1",
		ListingID:   "l1",
		BuyerID:     "b1",
		SellerID:    "s1",
		SenderKind:  "seller",
		SenderID:    "s1",
		Content:     "reply from the chat app",
	})
	require.NoError(t, g.Handle(ctx, payload))

	conv, err := store.Conversations().ByKey(ctx, chat.ConversationKey{ListingID: "l1", BuyerID: "b1", SellerID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, TransportChatApp, conv.SourceChannel)

	msgs, _, err := store.Messages().ListByConversation(ctx, conv.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "tg-1", msgs[0].ExternalRef)
	assert.Equal(t, "reply from the chat app", msgs[0].Content)
}

func TestIngestSuppressesRedelivery(t *testing.T) {
	g, store := newIngest(t)
	ctx := context.Background()

	payload := inboundPayload(t, ChatAppInbound{
		ExternalRef: "tg-1",
		BuyerID:     "b1",
		SellerID:    "s1",
		SenderKind:  "seller",
		SenderID:    "s1",
		Content:     "hi",
	})
	require.NoError(t, g.Handle(ctx, payload))
	require.NoError(t, g.Handle(ctx, payload))

	conv, err := store.Conversations().ByKey(ctx, chat.ConversationKey{BuyerID: "b1", SellerID: "s1"})
	require.NoError(t, err)
	msgs, _, err := store.Messages().ListByConversation(ctx, conv.ID, 10, "")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestIngestDropsMalformedRecords(t *testing.T) {
	g, _ := newIngest(t)
	ctx := context.Background()

	assert.NoError(t, g.Handle(ctx, []byte("{not json")))
	assert.NoError(t, g.Handle(ctx, inboundPayload(t, ChatAppInbound{
		BuyerID: "b1", SellerID: "s1", SenderKind: "seller", SenderID: "s1", Content: "hi",
	})))
}

func TestIngestReturnsStoreFailuresForRetry(t *testing.T) {
	g, _ := newIngest(t)
	g.Service.Directory = fakeDirectory{missing: map[string]bool{"buyer:b1": true}}
	ctx := context.Background()

	err := g.Handle(ctx, inboundPayload(t, ChatAppInbound{
		ExternalRef: "tg-9",
		BuyerID:     "b1",
		SellerID:    "s1",
		SenderKind:  "seller",
		SenderID:    "s1",
		Content:     "hi",
	}))
	assert.ErrorIs(t, err, chat.ErrParticipantNotFound)
}
