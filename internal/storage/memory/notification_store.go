package memory

import (
	"context"
	"sync"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// NotificationStore is an in-memory implementation of storage.NotificationStore.
type NotificationStore struct {
	mu    sync.Mutex
	byID  map[string]*domain.NotificationRecord
	order []string
}

// NewNotificationStore creates a new in-memory notification store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{byID: make(map[string]*domain.NotificationRecord)}
}

var _ storage.NotificationStore = (*NotificationStore)(nil)

func (s *NotificationStore) Insert(_ context.Context, n *domain.NotificationRecord) error {
	if n == nil || n.ID == "" || n.UserID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[n.ID]; ok {
		return storage.ErrDuplicateKey
	}

	cp := *n
	s.byID[n.ID] = &cp
	s.order = append(s.order, n.ID)
	return nil
}

func (s *NotificationStore) UpdateStatus(_ context.Context, id string, status domain.NotificationStatus, sentAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	n.Status = status
	if sentAt != nil {
		t := *sentAt
		n.SentAt = &t
	}
	return nil
}

func (s *NotificationStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.NotificationRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		n := s.byID[s.order[i]]
		if n.UserID != userID {
			continue
		}
		cp := *n
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
