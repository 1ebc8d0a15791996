package notificationRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ankaa/models"
)

type mongoNotificationRepo struct {
	coll *mongo.Collection
}

// NewMongoNotificationRepo returns a NotificationRepository backed by the "notifications" collection.
func NewMongoNotificationRepo(db *mongo.Database) (NotificationRepository, error) {
	repo := &mongoNotificationRepo{coll: db.Collection("notifications")}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := repo.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notification indexes: %w", err)
	}
	return repo, nil
}

func (r *mongoNotificationRepo) Save(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"id": n.ID},
		bson.M{"$setOnInsert": n},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save notification %s: %w", n.ID, err)
	}
	return nil
}

func (r *mongoNotificationRepo) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notification %s: %w", id, err)
	}
	return &n, nil
}

func (r *mongoNotificationRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	// sentAt: null also matches documents without the field
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "sentAt": nil},
		bson.M{"$set": bson.M{"sentAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification %s sent: %w", id, err)
	}
	return res.ModifiedCount == 1, nil
}
