package memory

import (
	"context"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

type settingsKey struct {
	UserID   string
	WalletID string
}

// SettingsStore is an in-memory implementation of storage.SettingsStore.
type SettingsStore struct {
	mu   sync.RWMutex
	data map[settingsKey]*domain.AutoLinkSettings
}

// NewSettingsStore creates a new in-memory settings store.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{data: make(map[settingsKey]*domain.AutoLinkSettings)}
}

var _ storage.SettingsStore = (*SettingsStore)(nil)

func (s *SettingsStore) Upsert(_ context.Context, set *domain.AutoLinkSettings) error {
	if set == nil || set.UserID == "" || set.WalletID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *set
	s.data[settingsKey{UserID: set.UserID, WalletID: set.WalletID}] = &cp
	return nil
}

func (s *SettingsStore) Get(_ context.Context, userID, walletID string) (*domain.AutoLinkSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.data[settingsKey{UserID: userID, WalletID: walletID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *set
	return &cp, nil
}

func (s *SettingsStore) GetByWalletID(_ context.Context, walletID string) (*domain.AutoLinkSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, set := range s.data {
		if key.WalletID == walletID {
			cp := *set
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}
