package notificationRepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ankaa/models"
)

// MemoryNotificationRepo is an in-process NotificationRepository.
type MemoryNotificationRepo struct {
	mu            sync.Mutex
	notifications map[string]models.Notification
	sentWrites    map[string]int
}

func NewMemoryNotificationRepo() *MemoryNotificationRepo {
	return &MemoryNotificationRepo{
		notifications: make(map[string]models.Notification),
		sentWrites:    make(map[string]int),
	}
}

func (m *MemoryNotificationRepo) Save(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if _, ok := m.notifications[n.ID]; !ok {
		m.notifications[n.ID] = *n
	}
	return nil
}

func (m *MemoryNotificationRepo) GetByID(_ context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (m *MemoryNotificationRepo) MarkSent(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.SentAt != nil {
		return false, nil
	}
	n.SentAt = &at
	m.notifications[id] = n
	m.sentWrites[id]++
	return true, nil
}

// SentWrites reports how many times sentAt was written for id.
func (m *MemoryNotificationRepo) SentWrites(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sentWrites[id]
}
