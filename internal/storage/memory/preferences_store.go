package memory

import (
	"context"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// PreferencesStore is an in-memory implementation of storage.PreferencesStore.
type PreferencesStore struct {
	mu   sync.RWMutex
	data map[string]*domain.NotificationPreferences // by user id
}

// NewPreferencesStore creates a new in-memory preferences store.
func NewPreferencesStore() *PreferencesStore {
	return &PreferencesStore{data: make(map[string]*domain.NotificationPreferences)}
}

var _ storage.PreferencesStore = (*PreferencesStore)(nil)

func (s *PreferencesStore) Get(_ context.Context, userID string) (*domain.NotificationPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *PreferencesStore) Upsert(_ context.Context, p *domain.NotificationPreferences) error {
	if p == nil || p.UserID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.data[p.UserID] = &cp
	return nil
}
