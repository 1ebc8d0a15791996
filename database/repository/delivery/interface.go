package deliveryRepo

import (
	"context"
	"errors"
	"time"

	"ankaa/models"
)

var (
	// ErrNotFound is returned when no record exists for a (notification, channel) pair.
	ErrNotFound = errors.New("delivery record not found")
	// ErrTerminalRecord is returned when an update targets a DELIVERED or FAILED record.
	ErrTerminalRecord = errors.New("delivery record is in a terminal state")
)

// StatusUpdate is the set of fields written by one status transition.
// Nil pointers leave the stored value unchanged.
type StatusUpdate struct {
	Status       models.DeliveryStatus
	RecipientID  string
	ErrorMessage string
	Attempts     *int
	MessageID    string
	SentAt       *time.Time
	DeliveredAt  *time.Time
	FailedAt     *time.Time
}

// DeliveryRecordRepository persists one record per (notificationId, channel).
type DeliveryRecordRepository interface {
	// Upsert creates the record on first use or applies update to it.
	// Records already in a terminal status are never modified.
	Upsert(ctx context.Context, notificationID string, ch models.Channel, update StatusUpdate) (*models.DeliveryRecord, error)
	// Find returns ErrNotFound when the pair has no record.
	Find(ctx context.Context, notificationID string, ch models.Channel) (*models.DeliveryRecord, error)
	ListByNotification(ctx context.Context, notificationID string) ([]models.DeliveryRecord, error)
}

// IntPtr is a helper for StatusUpdate.Attempts.
func IntPtr(n int) *int { return &n }
