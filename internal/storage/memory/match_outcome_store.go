package memory

import (
	"context"
	"sync"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// MatchOutcomeStore is an in-memory implementation of storage.MatchOutcomeStore.
type MatchOutcomeStore struct {
	mu   sync.Mutex
	data []*domain.MatchOutcome
}

// NewMatchOutcomeStore creates a new in-memory match outcome store.
func NewMatchOutcomeStore() *MatchOutcomeStore {
	return &MatchOutcomeStore{}
}

var _ storage.MatchOutcomeStore = (*MatchOutcomeStore)(nil)

func (s *MatchOutcomeStore) Insert(_ context.Context, o *domain.MatchOutcome) error {
	if o == nil || o.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *o
	s.data = append(s.data, &cp)
	return nil
}

// All returns a copy of every recorded outcome, in insertion order.
func (s *MatchOutcomeStore) All() []*domain.MatchOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.MatchOutcome, 0, len(s.data))
	for _, o := range s.data {
		cp := *o
		result = append(result, &cp)
	}
	return result
}
