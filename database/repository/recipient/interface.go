package recipientRepo

import (
	"context"
	"errors"

	"ankaa/models"
)

var ErrNotFound = errors.New("recipient not found")

// RecipientRepository is the directory of contact identifiers keyed by user id.
type RecipientRepository interface {
	GetByID(ctx context.Context, id string) (*models.Recipient, error)
	Upsert(ctx context.Context, r models.Recipient) error
}
