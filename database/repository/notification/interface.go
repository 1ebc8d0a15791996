package notificationRepo

import (
	"context"
	"errors"
	"time"

	"ankaa/models"
)

var ErrNotFound = errors.New("notification not found")

// NotificationRepository stores emitted notifications. The engine only ever
// writes SentAt after creation.
type NotificationRepository interface {
	// Save inserts the notification if its id is new; an existing document is left untouched.
	Save(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	// MarkSent sets sentAt only if it is still unset and reports whether this call set it.
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
}
