package memory

import (
	"context"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Wallet
	byAddress map[string]string // address -> id
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		byID:      make(map[string]*domain.Wallet),
		byAddress: make(map[string]string),
	}
}

var _ storage.WalletStore = (*WalletStore)(nil)

func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.ID == "" || w.UserID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[w.ID]; ok {
		return storage.ErrDuplicateKey
	}
	if _, ok := s.byAddress[w.Address]; ok {
		return storage.ErrDuplicateKey
	}

	cp := *w
	s.byID[w.ID] = &cp
	s.byAddress[w.Address] = w.ID
	return nil
}

func (s *WalletStore) GetByAddress(_ context.Context, address string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *WalletStore) GetByID(_ context.Context, id string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *WalletStore) ListByUser(_ context.Context, userID string) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Wallet
	for _, w := range s.byID {
		if w.UserID == userID {
			cp := *w
			result = append(result, &cp)
		}
	}
	return result, nil
}
