package deliveryRepo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ankaa/models"
)

func TestMemoryDeliveryRepo_UpsertAndFind(t *testing.T) {
	repo := NewMemoryDeliveryRepo()
	ctx := context.Background()

	_, err := repo.Find(ctx, "n-1", models.ChannelSMS)
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := repo.Upsert(ctx, "n-1", models.ChannelSMS, StatusUpdate{Status: models.DeliveryPending, RecipientID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryPending, rec.Status)
	assert.Zero(t, rec.Attempts)

	rec, err = repo.Upsert(ctx, "n-1", models.ChannelSMS, StatusUpdate{Status: models.DeliveryRetrying, Attempts: IntPtr(1), ErrorMessage: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, "u-1", rec.RecipientID)

	// attempts is kept when the update leaves it nil
	rec, err = repo.Upsert(ctx, "n-1", models.ChannelSMS, StatusUpdate{Status: models.DeliveryProcessing})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.Empty(t, rec.ErrorMessage)

	found, err := repo.Find(ctx, "n-1", models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryProcessing, found.Status)
}

func TestMemoryDeliveryRepo_TerminalRecordsAreFrozen(t *testing.T) {
	repo := NewMemoryDeliveryRepo()
	ctx := context.Background()
	now := time.Now()

	_, err := repo.Upsert(ctx, "n-1", models.ChannelEmail, StatusUpdate{Status: models.DeliveryDelivered, DeliveredAt: &now})
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, "n-1", models.ChannelEmail, StatusUpdate{Status: models.DeliveryProcessing})
	assert.ErrorIs(t, err, ErrTerminalRecord)

	rec, _ := repo.Find(ctx, "n-1", models.ChannelEmail)
	assert.Equal(t, models.DeliveryDelivered, rec.Status)
	assert.Equal(t, []models.DeliveryStatus{models.DeliveryDelivered}, repo.History("n-1", models.ChannelEmail))
}

func TestMemoryDeliveryRepo_ListByNotification(t *testing.T) {
	repo := NewMemoryDeliveryRepo()
	ctx := context.Background()
	for _, ch := range []models.Channel{models.ChannelSMS, models.ChannelEmail, models.ChannelInApp} {
		_, err := repo.Upsert(ctx, "n-1", ch, StatusUpdate{Status: models.DeliveryPending})
		require.NoError(t, err)
	}
	_, _ = repo.Upsert(ctx, "n-2", models.ChannelSMS, StatusUpdate{Status: models.DeliveryPending})

	list, err := repo.ListByNotification(ctx, "n-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, models.ChannelEmail, list[0].Channel)

	empty, err := repo.ListByNotification(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
