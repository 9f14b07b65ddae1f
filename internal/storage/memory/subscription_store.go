package memory

import (
	"context"
	"sync"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

type subscriptionKey struct {
	UserID  string
	Address string
	Kind    domain.SubscriptionType
}

// SubscriptionStore is an in-memory implementation of storage.SubscriptionStore.
type SubscriptionStore struct {
	mu   sync.Mutex
	data map[subscriptionKey]*domain.StreamSubscription
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{data: make(map[subscriptionKey]*domain.StreamSubscription)}
}

var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

func (s *SubscriptionStore) Upsert(_ context.Context, sub *domain.StreamSubscription) error {
	if sub == nil || sub.UserID == "" || sub.WalletAddress == "" || !sub.SubscriptionType.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := subscriptionKey{UserID: sub.UserID, Address: sub.WalletAddress, Kind: sub.SubscriptionType}
	if existing, ok := s.data[key]; ok {
		existing.IsActive = sub.IsActive
		if sub.SubscriptionID != nil {
			id := *sub.SubscriptionID
			existing.SubscriptionID = &id
		}
		return nil
	}

	cp := *sub
	s.data[key] = &cp
	return nil
}

func (s *SubscriptionStore) SetRemoteID(_ context.Context, userID, address string, kind domain.SubscriptionType, remoteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.data[subscriptionKey{UserID: userID, Address: address, Kind: kind}]
	if !ok {
		return storage.ErrNotFound
	}
	sub.SubscriptionID = &remoteID
	return nil
}

func (s *SubscriptionStore) Deactivate(_ context.Context, userID, address string, kind domain.SubscriptionType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.data[subscriptionKey{UserID: userID, Address: address, Kind: kind}]
	if !ok {
		return storage.ErrNotFound
	}
	sub.IsActive = false
	return nil
}

func (s *SubscriptionStore) ListActive(_ context.Context) ([]*domain.StreamSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.StreamSubscription
	for _, sub := range s.data {
		if sub.IsActive {
			cp := *sub
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *SubscriptionStore) TouchNotification(_ context.Context, remoteID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.data {
		if sub.SubscriptionID != nil && *sub.SubscriptionID == remoteID {
			t := at
			sub.LastNotificationAt = &t
			return nil
		}
	}
	return storage.ErrNotFound
}
