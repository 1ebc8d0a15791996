package inboxRepo

import (
	"context"
	"errors"

	"ankaa/models"
)

var ErrNotFound = errors.New("inbox message not found")

// InboxRepository stores in-app messages per recipient.
type InboxRepository interface {
	Insert(ctx context.Context, msg *models.InboxMessage) error
	// ListByRecipient returns the newest messages first.
	ListByRecipient(ctx context.Context, recipientID string, limit int64) ([]models.InboxMessage, error)
	MarkRead(ctx context.Context, recipientID, id string) error
}
