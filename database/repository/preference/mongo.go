package preferenceRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ankaa/models"
)

type mongoPreferenceRepo struct {
	users   *mongo.Collection
	globals *mongo.Collection
}

// NewMongoPreferenceRepo returns a PreferenceRepository over the
// "channel_preferences" and "global_channel_defaults" collections.
func NewMongoPreferenceRepo(db *mongo.Database) (PreferenceRepository, error) {
	repo := &mongoPreferenceRepo{
		users:   db.Collection("channel_preferences"),
		globals: db.Collection("global_channel_defaults"),
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *mongoPreferenceRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "recipientId", Value: 1}, {Key: "notificationType", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create preference indexes: %w", err)
	}
	_, err = r.globals.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "notificationType", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create global default indexes: %w", err)
	}
	return nil
}

func (r *mongoPreferenceRepo) GetUserPreference(ctx context.Context, recipientID, notificationType string) (*models.ChannelPreference, error) {
	var pref models.ChannelPreference
	err := r.users.FindOne(ctx, bson.M{"recipientId": recipientID, "notificationType": notificationType}).Decode(&pref)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch preference %s/%s: %w", recipientID, notificationType, err)
	}
	return &pref, nil
}

func (r *mongoPreferenceRepo) GetGlobalDefault(ctx context.Context, notificationType string) (*models.GlobalChannelDefault, error) {
	var def models.GlobalChannelDefault
	err := r.globals.FindOne(ctx, bson.M{"notificationType": notificationType}).Decode(&def)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch global default %s: %w", notificationType, err)
	}
	return &def, nil
}

func (r *mongoPreferenceRepo) SaveUserPreference(ctx context.Context, pref models.ChannelPreference) error {
	pref.UpdatedAt = time.Now()
	_, err := r.users.ReplaceOne(ctx,
		bson.M{"recipientId": pref.RecipientID, "notificationType": pref.NotificationType},
		pref,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save preference %s/%s: %w", pref.RecipientID, pref.NotificationType, err)
	}
	return nil
}

func (r *mongoPreferenceRepo) SaveGlobalDefault(ctx context.Context, def models.GlobalChannelDefault) error {
	def.UpdatedAt = time.Now()
	_, err := r.globals.ReplaceOne(ctx,
		bson.M{"notificationType": def.NotificationType},
		def,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save global default %s: %w", def.NotificationType, err)
	}
	return nil
}
