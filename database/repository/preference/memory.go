package preferenceRepo

import (
	"context"
	"sync"

	"ankaa/models"
)

// MemoryPreferenceRepo is an in-process PreferenceRepository.
type MemoryPreferenceRepo struct {
	mu      sync.RWMutex
	users   map[string]models.ChannelPreference
	globals map[string]models.GlobalChannelDefault
	lookups int
}

func NewMemoryPreferenceRepo() *MemoryPreferenceRepo {
	return &MemoryPreferenceRepo{
		users:   make(map[string]models.ChannelPreference),
		globals: make(map[string]models.GlobalChannelDefault),
	}
}

func userKey(recipientID, notificationType string) string {
	return recipientID + "\x00" + notificationType
}

func (m *MemoryPreferenceRepo) GetUserPreference(_ context.Context, recipientID, notificationType string) (*models.ChannelPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	pref, ok := m.users[userKey(recipientID, notificationType)]
	if !ok {
		return nil, nil
	}
	return &pref, nil
}

func (m *MemoryPreferenceRepo) GetGlobalDefault(_ context.Context, notificationType string) (*models.GlobalChannelDefault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	def, ok := m.globals[notificationType]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

func (m *MemoryPreferenceRepo) SaveUserPreference(_ context.Context, pref models.ChannelPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userKey(pref.RecipientID, pref.NotificationType)] = pref
	return nil
}

func (m *MemoryPreferenceRepo) SaveGlobalDefault(_ context.Context, def models.GlobalChannelDefault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globals[def.NotificationType] = def
	return nil
}

// Lookups counts Get calls; used to observe caching.
func (m *MemoryPreferenceRepo) Lookups() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookups
}
