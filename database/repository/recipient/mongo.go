package recipientRepo

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

type mongoRecipientRepo struct {
	coll *mongo.Collection
}

// NewMongoRecipientRepo returns a RecipientRepository backed by the "recipients" collection.
func NewMongoRecipientRepo(db *mongo.Database) (RecipientRepository, error) {
	repo := &mongoRecipientRepo{coll: db.Collection("recipients")}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureIndexes creates indexes for fields frequently used in queries.
func (r *mongoRecipientRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create recipient indexes: %w", err)
	}
	return nil
}

func (r *mongoRecipientRepo) GetByID(ctx context.Context, id string) (*models.Recipient, error) {
	var rec models.Recipient
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recipient with id %s: %w", id, err)
	}
	return &rec, nil
}

func (r *mongoRecipientRepo) Upsert(ctx context.Context, rec models.Recipient) error {
	_, err := r.coll.ReplaceOne(ctx, bson.M{"id": rec.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save recipient %s: %w", rec.ID, err)
	}
	return nil
}
