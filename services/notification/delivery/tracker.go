package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	deliveryRepo "ankaa/database/repository/delivery"
	notificationRepo "ankaa/database/repository/notification"
	"ankaa/models"
)

var (
	// ErrAlreadyFinal is returned by Begin for a DELIVERED or FAILED record.
	ErrAlreadyFinal = errors.New("delivery already finished")
	// ErrInFlight is returned by Begin when another worker holds the record in
	// PROCESSING and has touched it within the stale limit.
	ErrInFlight = errors.New("delivery already in progress")
	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid delivery status transition")
)

var transitions = map[models.DeliveryStatus][]models.DeliveryStatus{
	models.DeliveryPending:    {models.DeliveryProcessing},
	models.DeliveryProcessing: {models.DeliveryDelivered, models.DeliveryRetrying, models.DeliveryFailed},
	models.DeliveryRetrying:   {models.DeliveryProcessing},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to models.DeliveryStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tracker applies state-machine transitions to delivery records. Callers
// hold Acquire for the pair across a whole attempt so two attempts of one
// record never overlap in this process.
type Tracker struct {
	records       deliveryRepo.DeliveryRecordRepository
	notifications notificationRepo.NotificationRepository
	locks         *keyedMutex
	staleAfter    time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// DefaultStaleAfter is how long a PROCESSING record may go untouched before
// Begin takes it over.
const DefaultStaleAfter = 2 * time.Minute

func NewTracker(records deliveryRepo.DeliveryRecordRepository, notifications notificationRepo.NotificationRepository, logger *zap.Logger) *Tracker {
	return &Tracker{
		records:       records,
		notifications: notifications,
		locks:         newKeyedMutex(),
		staleAfter:    DefaultStaleAfter,
		now:           time.Now,
		logger:        logger.Named("tracker"),
	}
}

// WithClock replaces the time source; used by tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// WithStaleAfter sets the age at which a PROCESSING record is reclaimed.
// It should exceed the longest a transport may spend in Send.
func (t *Tracker) WithStaleAfter(d time.Duration) *Tracker {
	if d > 0 {
		t.staleAfter = d
	}
	return t
}

// StaleAfter returns the reclaim age.
func (t *Tracker) StaleAfter() time.Duration {
	return t.staleAfter
}

// Acquire locks the (notification, channel) pair and returns the unlock func.
func (t *Tracker) Acquire(notificationID string, ch models.Channel) func() {
	return t.locks.Lock(notificationID + "/" + string(ch))
}

// Begin moves the job's record to PROCESSING, creating it as PENDING first
// when this is the pair's first attempt. A record left in PROCESSING for
// longer than the stale limit belongs to an attempt whose outcome was never
// recorded; Begin reclaims it for the caller.
func (t *Tracker) Begin(ctx context.Context, job models.DeliveryJob) (*models.DeliveryRecord, error) {
	rec, err := t.records.Find(ctx, job.NotificationID, job.Channel)
	if errors.Is(err, deliveryRepo.ErrNotFound) {
		rec, err = t.records.Upsert(ctx, job.NotificationID, job.Channel, deliveryRepo.StatusUpdate{
			Status:      models.DeliveryPending,
			RecipientID: job.RecipientID,
			Attempts:    deliveryRepo.IntPtr(0),
		})
	}
	if err != nil {
		return nil, t.storeErr(err)
	}

	switch {
	case rec.Status.IsTerminal():
		return rec, ErrAlreadyFinal
	case rec.Status == models.DeliveryProcessing:
		age := t.now().Sub(rec.UpdatedAt)
		if age < t.staleAfter {
			return rec, ErrInFlight
		}
		t.logger.Warn("Reclaiming stale delivery",
			zap.String("notification_id", rec.NotificationID),
			zap.String("channel", string(rec.Channel)),
			zap.Duration("age", age),
			zap.Int("attempts", rec.Attempts),
		)
		// rewrite PROCESSING to refresh UpdatedAt
		out, err := t.records.Upsert(ctx, rec.NotificationID, rec.Channel, deliveryRepo.StatusUpdate{
			Status:   models.DeliveryProcessing,
			Attempts: deliveryRepo.IntPtr(rec.Attempts),
		})
		if err != nil {
			return nil, t.storeErr(err)
		}
		return out, nil
	}
	return t.transition(ctx, rec, models.DeliveryProcessing, deliveryRepo.StatusUpdate{Attempts: deliveryRepo.IntPtr(rec.Attempts)})
}

// MarkDelivered finishes the record and stamps the notification's sentAt once.
func (t *Tracker) MarkDelivered(ctx context.Context, job models.DeliveryJob, messageID string) (*models.DeliveryRecord, error) {
	now := t.now()
	rec, err := t.update(ctx, job, models.DeliveryDelivered, deliveryRepo.StatusUpdate{
		MessageID:   messageID,
		SentAt:      &now,
		DeliveredAt: &now,
	})
	if err != nil {
		return nil, err
	}

	first, err := t.notifications.MarkSent(ctx, job.NotificationID, now)
	if err != nil {
		// the delivery itself is recorded; sentAt is retried by the next channel to deliver
		t.logger.Error("Failed to set notification sentAt",
			zap.String("notification_id", job.NotificationID),
			zap.Error(err),
		)
	} else if first {
		t.logger.Debug("Notification sent", zap.String("notification_id", job.NotificationID), zap.String("channel", string(job.Channel)))
	}
	return rec, nil
}

// MarkRetrying records a failed attempt that will run again.
func (t *Tracker) MarkRetrying(ctx context.Context, job models.DeliveryJob, attempts int, reason string) (*models.DeliveryRecord, error) {
	return t.update(ctx, job, models.DeliveryRetrying, deliveryRepo.StatusUpdate{
		Attempts:     deliveryRepo.IntPtr(attempts),
		ErrorMessage: reason,
	})
}

// MarkFailed records a terminal failure.
func (t *Tracker) MarkFailed(ctx context.Context, job models.DeliveryJob, attempts int, reason string) (*models.DeliveryRecord, error) {
	now := t.now()
	return t.update(ctx, job, models.DeliveryFailed, deliveryRepo.StatusUpdate{
		Attempts:     deliveryRepo.IntPtr(attempts),
		ErrorMessage: reason,
		FailedAt:     &now,
	})
}

func (t *Tracker) update(ctx context.Context, job models.DeliveryJob, to models.DeliveryStatus, upd deliveryRepo.StatusUpdate) (*models.DeliveryRecord, error) {
	rec, err := t.records.Find(ctx, job.NotificationID, job.Channel)
	if err != nil {
		return nil, t.storeErr(err)
	}
	return t.transition(ctx, rec, to, upd)
}

func (t *Tracker) transition(ctx context.Context, rec *models.DeliveryRecord, to models.DeliveryStatus, upd deliveryRepo.StatusUpdate) (*models.DeliveryRecord, error) {
	if !CanTransition(rec.Status, to) {
		return rec, fmt.Errorf("%w: %s -> %s for %s/%s", ErrInvalidTransition, rec.Status, to, rec.NotificationID, rec.Channel)
	}
	upd.Status = to
	out, err := t.records.Upsert(ctx, rec.NotificationID, rec.Channel, upd)
	if err != nil {
		return nil, t.storeErr(err)
	}
	t.logger.Debug("Delivery status changed",
		zap.String("notification_id", rec.NotificationID),
		zap.String("channel", string(rec.Channel)),
		zap.String("from", string(rec.Status)),
		zap.String("status", string(to)),
		zap.Int("attempts", out.Attempts),
	)
	return out, nil
}

func (t *Tracker) storeErr(err error) error {
	if errors.Is(err, deliveryRepo.ErrTerminalRecord) {
		return ErrAlreadyFinal
	}
	return err
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
