package inboxRepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ankaa/models"
)

type mongoInboxRepo struct {
	coll *mongo.Collection
}

// NewMongoInboxRepo returns an InboxRepository backed by the "inbox_messages" collection.
func NewMongoInboxRepo(db *mongo.Database) (InboxRepository, error) {
	repo := &mongoInboxRepo{coll: db.Collection("inbox_messages")}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}}},
		// one inbox entry per notification and recipient, so a re-run task cannot duplicate it
		{Keys: bson.D{{Key: "notificationId", Value: 1}, {Key: "recipientId", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox indexes: %w", err)
	}
	return repo, nil
}

func (r *mongoInboxRepo) Insert(ctx context.Context, msg *models.InboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := r.coll.InsertOne(ctx, msg)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert inbox message: %w", err)
	}
	return nil
}

func (r *mongoInboxRepo) ListByRecipient(ctx context.Context, recipientID string, limit int64) ([]models.InboxMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.coll.Find(ctx, bson.M{"recipientId": recipientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox for %s: %w", recipientID, err)
	}
	defer cursor.Close(ctx)

	msgs := []models.InboxMessage{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *mongoInboxRepo) MarkRead(ctx context.Context, recipientID, id string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id, "recipientId": recipientID}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("failed to mark inbox message %s read: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
