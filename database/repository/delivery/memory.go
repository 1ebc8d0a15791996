package deliveryRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"ankaa/models"
)

type recordKey struct {
	notificationID string
	channel        models.Channel
}

// MemoryDeliveryRepo is an in-process DeliveryRecordRepository with the same
// terminal-state guard as the Mongo store.
type MemoryDeliveryRepo struct {
	mu      sync.Mutex
	records map[recordKey]models.DeliveryRecord
	history map[recordKey][]models.DeliveryStatus
	now     func() time.Time
}

func NewMemoryDeliveryRepo() *MemoryDeliveryRepo {
	return &MemoryDeliveryRepo{
		records: make(map[recordKey]models.DeliveryRecord),
		history: make(map[recordKey][]models.DeliveryStatus),
		now:     time.Now,
	}
}

func (m *MemoryDeliveryRepo) Upsert(_ context.Context, notificationID string, ch models.Channel, update StatusUpdate) (*models.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey{notificationID, ch}
	now := m.now()
	rec, ok := m.records[key]
	if ok && rec.Status.IsTerminal() {
		return nil, ErrTerminalRecord
	}
	if !ok {
		rec = models.DeliveryRecord{NotificationID: notificationID, Channel: ch, CreatedAt: now}
	}

	rec.Status = update.Status
	rec.ErrorMessage = update.ErrorMessage
	rec.UpdatedAt = now
	if update.RecipientID != "" {
		rec.RecipientID = update.RecipientID
	}
	if update.Attempts != nil {
		rec.Attempts = *update.Attempts
	}
	if update.MessageID != "" {
		rec.MessageID = update.MessageID
	}
	if update.SentAt != nil {
		rec.SentAt = update.SentAt
	}
	if update.DeliveredAt != nil {
		rec.DeliveredAt = update.DeliveredAt
	}
	if update.FailedAt != nil {
		rec.FailedAt = update.FailedAt
	}

	m.records[key] = rec
	m.history[key] = append(m.history[key], rec.Status)
	out := rec
	return &out, nil
}

func (m *MemoryDeliveryRepo) Find(_ context.Context, notificationID string, ch models.Channel) (*models.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recordKey{notificationID, ch}]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryDeliveryRepo) ListByNotification(_ context.Context, notificationID string) ([]models.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.DeliveryRecord{}
	for k, rec := range m.records {
		if k.notificationID == notificationID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

// History returns every status written for the pair, in order.
func (m *MemoryDeliveryRepo) History(notificationID string, ch models.Channel) []models.DeliveryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DeliveryStatus(nil), m.history[recordKey{notificationID, ch}]...)
}
