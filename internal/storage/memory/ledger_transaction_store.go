package memory

import (
	"context"
	"sync"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

type ledgerTxKey struct {
	UserID    string
	Signature string
}

// LedgerTransactionStore is an in-memory implementation of
// storage.LedgerTransactionStore.
type LedgerTransactionStore struct {
	mu   sync.RWMutex
	data []*domain.LedgerTransaction
	keys map[ledgerTxKey]bool
}

// NewLedgerTransactionStore creates a new in-memory ledger transaction store.
func NewLedgerTransactionStore() *LedgerTransactionStore {
	return &LedgerTransactionStore{keys: make(map[ledgerTxKey]bool)}
}

var _ storage.LedgerTransactionStore = (*LedgerTransactionStore)(nil)

func (s *LedgerTransactionStore) Insert(_ context.Context, t *domain.LedgerTransaction) error {
	if t == nil || t.ID == "" || t.UserID == "" || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	key := ledgerTxKey{UserID: t.UserID, Signature: t.Signature}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	cp := *t
	s.data = append(s.data, &cp)
	s.keys[key] = true
	return nil
}

func (s *LedgerTransactionStore) ListByUser(_ context.Context, userID string, limit int) ([]*domain.LedgerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerTransaction
	for i := len(s.data) - 1; i >= 0; i-- {
		if s.data[i].UserID != userID {
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

func (s *LedgerTransactionStore) CounterpartyCounts(_ context.Context, address string, since time.Time) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, t := range s.data {
		if t.CounterpartyAddress == address && !t.CreatedAt.Before(since) {
			counts[t.UserID]++
		}
	}
	return counts, nil
}

func (s *LedgerTransactionStore) CountAmountRange(_ context.Context, userID string, min, max float64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.data {
		if t.UserID == userID && t.Amount >= min && t.Amount <= max && !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *LedgerTransactionStore) CountInRange(_ context.Context, userID string, start, end time.Time, excludeSignature string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.data {
		if t.UserID != userID || t.Signature == excludeSignature {
			continue
		}
		if !t.CreatedAt.Before(start) && !t.CreatedAt.After(end) {
			count++
		}
	}
	return count, nil
}
