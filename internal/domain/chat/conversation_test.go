package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversationNeedsParticipants(t *testing.T) {
	_, err := NewConversation("c1", Participants{}, "l1", "", time.Now())
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	conv, err := NewConversation("c1", Participants{BuyerID: "b1"}, "l1", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, conv.CreatedAt, conv.LastActivityAt)
}

func TestConversationKeyDistinguishesListings(t *testing.T) {
	p := Participants{BuyerID: "b1", SellerID: "s1"}
	a, err := NewConversation("c1", p, "l1", "", time.Now())
	require.NoError(t, err)
	b, err := NewConversation("c2", p, "l2", "", time.Now())
	require.NoError(t, err)

	assert.NotEqual(t, a.Key().String(), b.Key().String())

	c, err := NewConversation("c3", p, "l1", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, a.Key().String(), c.Key().String())
}

func TestHasParticipantMatchesEitherSellerSlot(t *testing.T) {
	conv, err := NewConversation("c1", Participants{SellerID: "s1", InquirerSellerID: "s2", StaffID: "st1"}, "l1", "", time.Now())
	require.NoError(t, err)

	assert.True(t, conv.HasParticipant(Actor{Kind: KindSeller, ID: "s1"}))
	assert.True(t, conv.HasParticipant(Actor{Kind: KindSeller, ID: "s2"}))
	assert.True(t, conv.HasParticipant(Actor{Kind: KindStaff, ID: "st1"}))
	assert.False(t, conv.HasParticipant(Actor{Kind: KindSeller, ID: "s3"}))
	assert.False(t, conv.HasParticipant(Actor{Kind: KindBuyer, ID: "s1"}))
	assert.False(t, conv.HasParticipant(Actor{Kind: KindSeller, ID: ""}))
}

func TestBroadcastTargetsExcludeStaff(t *testing.T) {
	conv, err := NewConversation("c1", Participants{BuyerID: "b1", SellerID: "s1", StaffID: "st1"}, "l1", "", time.Now())
	require.NoError(t, err)

	targets := conv.BroadcastTargets()
	assert.ElementsMatch(t, []Actor{
		{Kind: KindBuyer, ID: "b1"},
		{Kind: KindSeller, ID: "s1"},
	}, targets)
}

func TestBroadcastTargetsAreDistinct(t *testing.T) {
	conv, err := NewConversation("c1", Participants{SellerID: "s1", InquirerSellerID: "s1"}, "l1", "", time.Now())
	require.NoError(t, err)
	assert.Len(t, conv.BroadcastTargets(), 1)
}

func TestUnreadFilterFor(t *testing.T) {
	regular, err := NewConversation("c1", Participants{BuyerID: "b1", SellerID: "s1", StaffID: "st1"}, "l1", "", time.Now())
	require.NoError(t, err)
	s2s, err := NewConversation("c2", Participants{SellerID: "s1", InquirerSellerID: "s2"}, "l1", "", time.Now())
	require.NoError(t, err)

	buyerFilter, ok := UnreadFilterFor(Actor{Kind: KindBuyer, ID: "b1"}, regular)
	require.True(t, ok)
	assert.ElementsMatch(t, []ActorKind{KindSeller, KindStaff}, buyerFilter.SenderKinds)

	sellerFilter, ok := UnreadFilterFor(Actor{Kind: KindSeller, ID: "s1"}, regular)
	require.True(t, ok)
	assert.ElementsMatch(t, []ActorKind{KindBuyer, KindStaff}, sellerFilter.SenderKinds)

	s2sFilter, ok := UnreadFilterFor(Actor{Kind: KindSeller, ID: "s2"}, s2s)
	require.True(t, ok)
	assert.Empty(t, s2sFilter.SenderKinds)
	assert.Equal(t, "s2", s2sFilter.ExcludeSenderID)

	_, ok = UnreadFilterFor(Actor{Kind: KindBuyer, ID: "other"}, regular)
	assert.False(t, ok)
}

func TestUnreadFilterMatches(t *testing.T) {
	now := time.Now()
	fromSeller, err := NewMessage("m1", "c1", Actor{Kind: KindSeller, ID: "s1"}, "", "hi", "", "", now)
	require.NoError(t, err)
	fromBuyer, err := NewMessage("m2", "c1", Actor{Kind: KindBuyer, ID: "b1"}, "", "hi", "", "", now)
	require.NoError(t, err)

	buyerFilter := UnreadFilter{SenderKinds: []ActorKind{KindSeller, KindStaff}}
	assert.True(t, buyerFilter.Matches(fromSeller))
	assert.False(t, buyerFilter.Matches(fromBuyer))

	s2s := UnreadFilter{ExcludeSenderID: "s1"}
	assert.False(t, s2s.Matches(fromSeller))
	assert.True(t, s2s.Matches(fromBuyer))

	fromSeller.MarkRead(now)
	assert.False(t, buyerFilter.Matches(fromSeller))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("  short  "))

	long := strings.Repeat("word ", 40)
	got := Preview(long)
	assert.LessOrEqual(t, len(got), 125)
	assert.True(t, strings.HasSuffix(got, "…"))
}
