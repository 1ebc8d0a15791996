package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	deliveryRepo "ankaa/database/repository/delivery"
	notificationRepo "ankaa/database/repository/notification"
	"ankaa/models"
)

func newTracker(t *testing.T) (*Tracker, *deliveryRepo.MemoryDeliveryRepo, *notificationRepo.MemoryNotificationRepo) {
	t.Helper()
	records := deliveryRepo.NewMemoryDeliveryRepo()
	notifications := notificationRepo.NewMemoryNotificationRepo()
	require.NoError(t, notifications.Save(context.Background(), &models.Notification{ID: "n-1"}))
	return NewTracker(records, notifications, zap.NewNop()), records, notifications
}

func TestTracker_BeginCreatesPendingThenProcessing(t *testing.T) {
	tr, records, _ := newTracker(t)
	job := models.DeliveryJob{NotificationID: "n-1", Channel: models.ChannelEmail, RecipientID: "u-1"}

	rec, err := tr.Begin(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryProcessing, rec.Status)
	assert.Equal(t, "u-1", rec.RecipientID)
	assert.Equal(t, []models.DeliveryStatus{models.DeliveryPending, models.DeliveryProcessing}, records.History("n-1", models.ChannelEmail))
}

func TestTracker_BeginRefusesInFlightAndFinal(t *testing.T) {
	tr, _, _ := newTracker(t)
	ctx := context.Background()
	job := models.DeliveryJob{NotificationID: "n-1", Channel: models.ChannelPush}

	_, err := tr.Begin(ctx, job)
	require.NoError(t, err)
	_, err = tr.Begin(ctx, job)
	assert.ErrorIs(t, err, ErrInFlight)

	_, err = tr.MarkDelivered(ctx, job, "m-1")
	require.NoError(t, err)
	_, err = tr.Begin(ctx, job)
	assert.ErrorIs(t, err, ErrAlreadyFinal)
}

func TestTracker_BeginReclaimsStaleProcessing(t *testing.T) {
	tr, records, _ := newTracker(t)
	ctx := context.Background()
	job := models.DeliveryJob{NotificationID: "n-1", Channel: models.ChannelSMS}

	_, err := tr.Begin(ctx, job)
	require.NoError(t, err)
	_, err = tr.Begin(ctx, job)
	require.ErrorIs(t, err, ErrInFlight)

	tr.WithClock(func() time.Time { return time.Now().Add(DefaultStaleAfter + time.Minute) })
	rec, err := tr.Begin(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryProcessing, rec.Status)

	_, err = tr.MarkDelivered(ctx, job, "m-1")
	require.NoError(t, err)
	assert.Equal(t,
		[]models.DeliveryStatus{models.DeliveryPending, models.DeliveryProcessing, models.DeliveryProcessing, models.DeliveryDelivered},
		records.History("n-1", models.ChannelSMS))
}

func TestTracker_WithStaleAfterIgnoresNonPositive(t *testing.T) {
	tr, _, _ := newTracker(t)
	tr.WithStaleAfter(0)
	assert.Equal(t, DefaultStaleAfter, tr.StaleAfter())
	tr.WithStaleAfter(30 * time.Second)
	assert.Equal(t, 30*time.Second, tr.StaleAfter())
}

func TestTracker_TerminalStatesAreAbsorbing(t *testing.T) {
	tr, records, _ := newTracker(t)
	ctx := context.Background()
	job := models.DeliveryJob{NotificationID: "n-1", Channel: models.ChannelSMS}

	_, err := tr.Begin(ctx, job)
	require.NoError(t, err)
	_, err = tr.MarkFailed(ctx, job, 0, "not registered")
	require.NoError(t, err)

	_, err = tr.MarkDelivered(ctx, job, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = tr.MarkRetrying(ctx, job, 1, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	history := records.History("n-1", models.ChannelSMS)
	assert.Equal(t, models.DeliveryFailed, history[len(history)-1])
	for i, s := range history[:len(history)-1] {
		assert.False(t, s.IsTerminal(), "terminal status at %d was left", i)
	}
}

func TestTracker_RetryingMustPassThroughProcessing(t *testing.T) {
	tr, _, _ := newTracker(t)
	ctx := context.Background()
	job := models.DeliveryJob{NotificationID: "n-1", Channel: models.ChannelWhatsApp}

	_, err := tr.Begin(ctx, job)
	require.NoError(t, err)
	_, err = tr.MarkRetrying(ctx, job, 1, "timeout")
	require.NoError(t, err)

	_, err = tr.MarkDelivered(ctx, job, "m")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec, err := tr.Begin(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryProcessing, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestTracker_SentAtSetOnceAcrossChannels(t *testing.T) {
	tr, _, notifications := newTracker(t)
	ctx := context.Background()
	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	tr.WithClock(func() time.Time { return clock })

	for i, ch := range []models.Channel{models.ChannelEmail, models.ChannelInApp, models.ChannelPush} {
		job := models.DeliveryJob{NotificationID: "n-1", Channel: ch}
		_, err := tr.Begin(ctx, job)
		require.NoError(t, err)
		clock = clock.Add(time.Duration(i+1) * time.Second)
		_, err = tr.MarkDelivered(ctx, job, "")
		require.NoError(t, err)
	}

	n, err := notifications.GetByID(ctx, "n-1")
	require.NoError(t, err)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, time.Date(2026, 10, 1, 9, 0, 1, 0, time.UTC), *n.SentAt)
	assert.Equal(t, 1, notifications.SentWrites("n-1"))
}

func TestTracker_AcquireSerializesPair(t *testing.T) {
	tr, _, _ := newTracker(t)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := tr.Acquire("n-1", models.ChannelSMS)
			defer release()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, tr.locks.size(), "released keys are forgotten")
}

func TestCanTransition(t *testing.T) {
	all := []models.DeliveryStatus{models.DeliveryPending, models.DeliveryProcessing, models.DeliveryDelivered, models.DeliveryFailed, models.DeliveryRetrying}
	for _, to := range all {
		assert.False(t, CanTransition(models.DeliveryDelivered, to))
		assert.False(t, CanTransition(models.DeliveryFailed, to))
	}
	assert.True(t, CanTransition(models.DeliveryPending, models.DeliveryProcessing))
	assert.True(t, CanTransition(models.DeliveryRetrying, models.DeliveryProcessing))
	assert.False(t, CanTransition(models.DeliveryPending, models.DeliveryDelivered))
	assert.False(t, CanTransition(models.DeliveryRetrying, models.DeliveryDelivered))
}
