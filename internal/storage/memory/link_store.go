package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// LinkStore is an in-memory implementation of storage.LinkStore.
type LinkStore struct {
	mu    sync.Mutex
	byID  map[string]*domain.PendingTransferLink
	bySig map[string]string // signature -> id
	order []string          // ids in insertion order
}

// NewLinkStore creates a new in-memory link store.
func NewLinkStore() *LinkStore {
	return &LinkStore{
		byID:  make(map[string]*domain.PendingTransferLink),
		bySig: make(map[string]string),
	}
}

var _ storage.LinkStore = (*LinkStore)(nil)

func (s *LinkStore) Insert(_ context.Context, l *domain.PendingTransferLink) error {
	if l == nil || l.ID == "" || l.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySig[l.Signature]; ok {
		return storage.ErrDuplicateKey
	}
	if _, ok := s.byID[l.ID]; ok {
		return storage.ErrDuplicateKey
	}

	cp := *l
	s.byID[l.ID] = &cp
	s.bySig[l.Signature] = l.ID
	s.order = append(s.order, l.ID)
	return nil
}

func (s *LinkStore) GetBySignature(_ context.Context, signature string) (*domain.PendingTransferLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.bySig[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *LinkStore) ListScorable(_ context.Context, now time.Time, cooldown time.Duration, limit int, signature string, force bool) ([]*domain.PendingTransferLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.PendingTransferLink
	for _, id := range s.order {
		l := s.byID[id]
		if l.AutoLinkStatus != domain.StatusPending {
			continue
		}
		if l.Expired(now) {
			continue
		}
		if signature != "" && l.Signature != signature {
			continue
		}
		if !force && l.LastAttemptAt != nil && now.Sub(*l.LastAttemptAt) < cooldown {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}

	// Oldest first
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *LinkStore) Claim(_ context.Context, id string, now time.Time, cooldown time.Duration, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if l.AutoLinkStatus != domain.StatusPending {
		return false, nil
	}
	if !force && l.LastAttemptAt != nil && now.Sub(*l.LastAttemptAt) < cooldown {
		return false, nil
	}

	l.Attempts++
	at := now
	l.LastAttemptAt = &at
	return true, nil
}

func (s *LinkStore) Transition(_ context.Context, id string, from, to domain.AutoLinkStatus, score float64, linked *storage.LinkIdentity) error {
	if to == domain.StatusLinked && linked == nil {
		return storage.ErrInvalidInput
	}
	if to != domain.StatusLinked && linked != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	if l.AutoLinkStatus != from {
		return storage.ErrInvalidTransition
	}

	l.AutoLinkStatus = to
	l.ConfidenceScore = score
	if linked != nil {
		userID := linked.UserID
		walletID := linked.WalletID
		txID := linked.TransactionID
		l.LinkedUserID = &userID
		l.LinkedWalletID = &walletID
		l.LinkedTransactionID = &txID
	}
	return nil
}

func (s *LinkStore) UpdateScore(_ context.Context, id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	l.ConfidenceScore = score
	return nil
}

func (s *LinkStore) ListByWallet(_ context.Context, walletAddress string, status domain.AutoLinkStatus, limit int) ([]*domain.PendingTransferLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.PendingTransferLink
	for _, id := range s.order {
		l := s.byID[id]
		if l.WalletAddress != walletAddress {
			continue
		}
		if status != "" && l.AutoLinkStatus != status {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}

	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *LinkStore) ListByStatus(_ context.Context, status domain.AutoLinkStatus, limit int) ([]*domain.PendingTransferLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.PendingTransferLink
	for _, id := range s.order {
		l := s.byID[id]
		if l.AutoLinkStatus != status {
			continue
		}
		cp := *l
		result = append(result, &cp)
	}

	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortNewestFirst(links []*domain.PendingTransferLink) {
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
}
