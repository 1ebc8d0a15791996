package deliveryRepo

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

type mongoDeliveryRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoDeliveryRepo returns a DeliveryRecordRepository backed by the
// "delivery_records" collection.
func NewMongoDeliveryRepo(db *mongo.Database) (DeliveryRecordRepository, error) {
	repo := &mongoDeliveryRepo{coll: db.Collection("delivery_records"), now: time.Now}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

// newContext bounds a store call when the caller's context has no deadline.
func newContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func (r *mongoDeliveryRepo) ensureIndexes() error {
	ctx, cancel := newContext(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "notificationId", Value: 1}, {Key: "channel", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: -1}}},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create delivery indexes: %w", err)
	}
	return nil
}

func (r *mongoDeliveryRepo) Upsert(ctx context.Context, notificationID string, ch models.Channel, update StatusUpdate) (*models.DeliveryRecord, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	now := r.now()
	set := bson.M{
		"status":       update.Status,
		"errorMessage": update.ErrorMessage,
		"updatedAt":    now,
	}
	setOnInsert := bson.M{"createdAt": now}
	if update.RecipientID != "" {
		set["recipientId"] = update.RecipientID
	}
	if update.Attempts != nil {
		set["attempts"] = *update.Attempts
	} else {
		setOnInsert["attempts"] = 0
	}
	if update.MessageID != "" {
		set["messageId"] = update.MessageID
	}
	if update.SentAt != nil {
		set["sentAt"] = *update.SentAt
	}
	if update.DeliveredAt != nil {
		set["deliveredAt"] = *update.DeliveredAt
	}
	if update.FailedAt != nil {
		set["failedAt"] = *update.FailedAt
	}

	// Terminal records never match, so the upsert falls through to an insert
	// that the unique (notificationId, channel) index rejects.
	filter := bson.M{
		"notificationId": notificationID,
		"channel":        ch,
		"status":         bson.M{"$nin": bson.A{models.DeliveryDelivered, models.DeliveryFailed}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rec models.DeliveryRecord
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set, "$setOnInsert": setOnInsert}, opts).Decode(&rec)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrTerminalRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert delivery %s/%s: %w", notificationID, ch, err)
	}
	return &rec, nil
}

func (r *mongoDeliveryRepo) Find(ctx context.Context, notificationID string, ch models.Channel) (*models.DeliveryRecord, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	var rec models.DeliveryRecord
	err := r.coll.FindOne(ctx, bson.M{"notificationId": notificationID, "channel": ch}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delivery %s/%s: %w", notificationID, ch, err)
	}
	return &rec, nil
}

func (r *mongoDeliveryRepo) ListByNotification(ctx context.Context, notificationID string) ([]models.DeliveryRecord, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	cursor, err := r.coll.Find(ctx, bson.M{"notificationId": notificationID}, options.Find().SetSort(bson.D{{Key: "channel", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries for %s: %w", notificationID, err)
	}
	defer cursor.Close(ctx)

	records := []models.DeliveryRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
