package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageValidation(t *testing.T) {
	now := time.Now()

	_, err := NewMessage("m1", "c1", Actor{Kind: "robot", ID: "r1"}, "", "hi", "", "", now)
	assert.ErrorIs(t, err, ErrInvalidSender)

	_, err = NewMessage("m1", "c1", Actor{Kind: KindBuyer, ID: "b1"}, "", "   \n ", "", "", now)
	assert.ErrorIs(t, err, ErrEmptyContent)

	msg, err := NewMessage("m1", "c1", Actor{Kind: KindBuyer, ID: "b1"}, "Ann", "  hi there ", "l1", "Bike · 100", now)
	require.NoError(t, err)
	assert.Equal(t, "hi there", msg.Content)
	assert.Equal(t, StatusSent, msg.Status)
	assert.True(t, msg.DeliveredAt.IsZero())
	assert.True(t, msg.IsUnread())
}

func TestMessageLifecycleForwardOnly(t *testing.T) {
	now := time.Now()
	msg, err := NewMessage("m1", "c1", Actor{Kind: KindBuyer, ID: "b1"}, "", "hi", "", "", now)
	require.NoError(t, err)

	assert.True(t, msg.MarkDelivered(now))
	assert.Equal(t, StatusDelivered, msg.Status)
	deliveredAt := msg.DeliveredAt

	// Repeat receipts are no-ops.
	assert.False(t, msg.MarkDelivered(now.Add(time.Minute)))
	assert.Equal(t, deliveredAt, msg.DeliveredAt)

	assert.True(t, msg.MarkRead(now.Add(time.Minute)))
	assert.Equal(t, StatusRead, msg.Status)
	assert.False(t, msg.IsUnread())

	// Read never regresses to delivered.
	assert.False(t, msg.MarkDelivered(now.Add(2*time.Minute)))
	assert.Equal(t, StatusRead, msg.Status)
	assert.False(t, msg.MarkRead(now.Add(2*time.Minute)))
}

func TestMarkReadBackfillsDelivery(t *testing.T) {
	now := time.Now()
	msg, err := NewMessage("m1", "c1", Actor{Kind: KindSeller, ID: "s1"}, "", "hi", "", "", now)
	require.NoError(t, err)

	readAt := now.Add(5 * time.Second)
	require.True(t, msg.MarkRead(readAt))
	assert.Equal(t, StatusRead, msg.Status)
	assert.Equal(t, readAt.UTC(), msg.ReadAt)
	assert.Equal(t, readAt.UTC(), msg.DeliveredAt)
}

func TestSetExternalRefOnce(t *testing.T) {
	msg, err := NewMessage("m1", "c1", Actor{Kind: KindSeller, ID: "s1"}, "", "hi", "", "", time.Now())
	require.NoError(t, err)

	assert.False(t, msg.SetExternalRef(""))
	assert.True(t, msg.SetExternalRef("tg-42"))
	assert.False(t, msg.SetExternalRef("tg-43"))
	assert.Equal(t, "tg-42", msg.ExternalRef)
}
