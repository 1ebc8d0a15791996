package deliveryRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ankaa/models"
)

// deliveryRow is the relational shape of a DeliveryRecord.
type deliveryRow struct {
	ID             uint   `gorm:"primaryKey"`
	NotificationID string `gorm:"column:notification_id;not null;uniqueIndex:idx_delivery_pair"`
	Channel        string `gorm:"column:channel;not null;uniqueIndex:idx_delivery_pair"`
	RecipientID    string `gorm:"column:recipient_id"`
	Status         string `gorm:"column:status;not null;index:idx_delivery_status"`
	Attempts       int    `gorm:"column:attempts;not null;default:0"`
	ErrorMessage   string `gorm:"column:error_message"`
	MessageID      string `gorm:"column:message_id"`
	SentAt         *time.Time
	DeliveredAt    *time.Time
	FailedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time `gorm:"index:idx_delivery_status"`
}

func (deliveryRow) TableName() string {
	return "delivery_records"
}

type postgresDeliveryRepo struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresDeliveryRepo returns a DeliveryRecordRepository backed by the
// delivery_records table, migrating it if needed.
func NewPostgresDeliveryRepo(db *gorm.DB) (DeliveryRecordRepository, error) {
	if err := db.AutoMigrate(&deliveryRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate delivery_records: %w", err)
	}
	return &postgresDeliveryRepo{db: db, now: time.Now}, nil
}

func (r *postgresDeliveryRepo) Upsert(ctx context.Context, notificationID string, ch models.Channel, update StatusUpdate) (*models.DeliveryRecord, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	var out deliveryRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()
		seed := deliveryRow{
			NotificationID: notificationID,
			Channel:        string(ch),
			Status:         string(update.Status),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var row deliveryRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("notification_id = ? AND channel = ?", notificationID, string(ch)).
			First(&row).Error; err != nil {
			return err
		}
		if seed.ID == 0 && models.DeliveryStatus(row.Status).IsTerminal() {
			return ErrTerminalRecord
		}

		row.apply(update, now)
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		out = row
		return nil
	})
	if errors.Is(err, ErrTerminalRecord) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert delivery %s/%s: %w", notificationID, ch, err)
	}
	rec := out.record()
	return &rec, nil
}

func (r *postgresDeliveryRepo) Find(ctx context.Context, notificationID string, ch models.Channel) (*models.DeliveryRecord, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	var row deliveryRow
	err := r.db.WithContext(ctx).
		Where("notification_id = ? AND channel = ?", notificationID, string(ch)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delivery %s/%s: %w", notificationID, ch, err)
	}
	rec := row.record()
	return &rec, nil
}

func (r *postgresDeliveryRepo) ListByNotification(ctx context.Context, notificationID string) ([]models.DeliveryRecord, error) {
	ctx, cancel := newContext(ctx, 5*time.Second)
	defer cancel()

	var rows []deliveryRow
	if err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("channel").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list deliveries for %s: %w", notificationID, err)
	}
	records := make([]models.DeliveryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// apply merges a status update with the same field rules as the Mongo store.
func (row *deliveryRow) apply(update StatusUpdate, now time.Time) {
	row.Status = string(update.Status)
	row.ErrorMessage = update.ErrorMessage
	row.UpdatedAt = now
	if update.RecipientID != "" {
		row.RecipientID = update.RecipientID
	}
	if update.Attempts != nil {
		row.Attempts = *update.Attempts
	}
	if update.MessageID != "" {
		row.MessageID = update.MessageID
	}
	if update.SentAt != nil {
		row.SentAt = update.SentAt
	}
	if update.DeliveredAt != nil {
		row.DeliveredAt = update.DeliveredAt
	}
	if update.FailedAt != nil {
		row.FailedAt = update.FailedAt
	}
}

func (row deliveryRow) record() models.DeliveryRecord {
	return models.DeliveryRecord{
		NotificationID: row.NotificationID,
		Channel:        models.Channel(row.Channel),
		RecipientID:    row.RecipientID,
		Status:         models.DeliveryStatus(row.Status),
		Attempts:       row.Attempts,
		ErrorMessage:   row.ErrorMessage,
		MessageID:      row.MessageID,
		SentAt:         row.SentAt,
		DeliveredAt:    row.DeliveredAt,
		FailedAt:       row.FailedAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}
