package preferenceRepo

import (
	"context"

	"ankaa/models"
)

// PreferenceRepository is the preference store. Lookups return nil, nil when
// nothing is stored for the key.
type PreferenceRepository interface {
	GetUserPreference(ctx context.Context, recipientID, notificationType string) (*models.ChannelPreference, error)
	GetGlobalDefault(ctx context.Context, notificationType string) (*models.GlobalChannelDefault, error)
	SaveUserPreference(ctx context.Context, pref models.ChannelPreference) error
	SaveGlobalDefault(ctx context.Context, def models.GlobalChannelDefault) error
}
