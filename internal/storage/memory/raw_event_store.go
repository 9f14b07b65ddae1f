package memory

import (
	"context"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

type rawEventKey struct {
	Signature     string
	WalletAddress string
}

// RawEventStore is an in-memory implementation of storage.RawEventStore.
// Append-only, matching the durable transaction stream log.
type RawEventStore struct {
	mu   sync.RWMutex
	data []*domain.RawEvent
	keys map[rawEventKey]bool
}

// NewRawEventStore creates a new in-memory raw event store.
func NewRawEventStore() *RawEventStore {
	return &RawEventStore{keys: make(map[rawEventKey]bool)}
}

var _ storage.RawEventStore = (*RawEventStore)(nil)

func (s *RawEventStore) Insert(_ context.Context, e *domain.RawEvent) error {
	if e == nil || e.Signature == "" || e.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	key := rawEventKey{Signature: e.Signature, WalletAddress: e.WalletAddress}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	cp := *e
	s.data = append(s.data, &cp)
	s.keys[key] = true
	return nil
}

func (s *RawEventStore) GetBySignature(_ context.Context, signature, walletAddress string) (*domain.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data {
		if e.Signature == signature && e.WalletAddress == walletAddress {
			cp := *e
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *RawEventStore) ListByWallet(_ context.Context, walletAddress string, limit int) ([]*domain.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RawEvent
	for i := len(s.data) - 1; i >= 0; i-- {
		if s.data[i].WalletAddress != walletAddress {
			continue
		}
		cp := *s.data[i]
		result = append(result, &cp)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}
