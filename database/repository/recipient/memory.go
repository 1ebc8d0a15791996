package recipientRepo

import (
	"context"
	"sync"

	"ankaa/models"
)

// MemoryRecipientRepo is an in-process RecipientRepository.
type MemoryRecipientRepo struct {
	mu         sync.RWMutex
	recipients map[string]models.Recipient
}

func NewMemoryRecipientRepo(seed ...models.Recipient) *MemoryRecipientRepo {
	m := &MemoryRecipientRepo{recipients: make(map[string]models.Recipient, len(seed))}
	for _, r := range seed {
		m.recipients[r.ID] = r
	}
	return m
}

func (m *MemoryRecipientRepo) GetByID(_ context.Context, id string) (*models.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recipients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryRecipientRepo) Upsert(_ context.Context, r models.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = r
	return nil
}
