package inboxRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ankaa/models"
)

// MemoryInboxRepo is an in-process InboxRepository.
type MemoryInboxRepo struct {
	mu       sync.Mutex
	messages []models.InboxMessage
}

func NewMemoryInboxRepo() *MemoryInboxRepo {
	return &MemoryInboxRepo{}
}

func (m *MemoryInboxRepo) Insert(_ context.Context, msg *models.InboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages {
		if existing.NotificationID == msg.NotificationID && existing.RecipientID == msg.RecipientID {
			return nil
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryInboxRepo) ListByRecipient(_ context.Context, recipientID string, limit int64) ([]models.InboxMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.InboxMessage{}
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryInboxRepo) MarkRead(_ context.Context, recipientID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.messages {
		if m.messages[i].ID == id && m.messages[i].RecipientID == recipientID {
			m.messages[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}
