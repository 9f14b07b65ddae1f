package memory

import (
	"context"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// PushEndpointStore is an in-memory implementation of storage.PushEndpointStore.
type PushEndpointStore struct {
	mu   sync.Mutex
	data map[string]*domain.PushEndpoint // by id
}

// NewPushEndpointStore creates a new in-memory push endpoint store.
func NewPushEndpointStore() *PushEndpointStore {
	return &PushEndpointStore{data: make(map[string]*domain.PushEndpoint)}
}

var _ storage.PushEndpointStore = (*PushEndpointStore)(nil)

func (s *PushEndpointStore) Insert(_ context.Context, e *domain.PushEndpoint) error {
	if e == nil || e.ID == "" || e.UserID == "" || e.URL == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[e.ID]; ok {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.data {
		if existing.UserID == e.UserID && existing.URL == e.URL {
			return storage.ErrDuplicateKey
		}
	}

	cp := *e
	s.data[e.ID] = &cp
	return nil
}

func (s *PushEndpointStore) ListActiveByUser(_ context.Context, userID string) ([]*domain.PushEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.PushEndpoint
	for _, e := range s.data {
		if e.UserID == userID && e.IsActive {
			cp := *e
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *PushEndpointStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	e.IsActive = false
	return nil
}
