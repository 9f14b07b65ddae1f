package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// Signal weights and lookbacks. Signals are independent and additive; the
// sum is clamped to [0,1].
const (
	weightExactMatch     = 0.9
	weightCounterpart    = 0.3
	weightSimilarAmount  = 0.2
	weightTimeWindowEach = 0.1

	counterpartLookback   = 7 * 24 * time.Hour
	similarLookback       = 30 * 24 * time.Hour
	similarTolerance      = 0.05
	minCounterpartMatches = 2
)

// Score is the result of one scoring pass over one link. Contributions are
// recorded pre-clamp for the analytics sink.
type Score struct {
	Total           float64
	ExactMatch      float64
	CounterpartHist float64
	SimilarAmount   float64
	TimeWindow      float64

	// Candidate identified by signal 1, or by signal 2's majority vote.
	CandidateUserID   string
	CandidateWalletID string // only set when signal 1 fired
	ExactCandidate    bool
}

// Scorer computes confidence scores from registered wallets and linked
// transaction history. Scoring is read-only and deterministic: the same
// link against unchanged history yields the same score.
type Scorer struct {
	wallets   storage.WalletStore
	history   storage.LedgerTransactionStore
	rawEvents storage.RawEventStore
	now       func() time.Time
}

// NewScorer creates a new Scorer. now defaults to time.Now.
func NewScorer(wallets storage.WalletStore, history storage.LedgerTransactionStore, rawEvents storage.RawEventStore, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{wallets: wallets, history: history, rawEvents: rawEvents, now: now}
}

// Score evaluates all four signals for a link.
func (s *Scorer) Score(ctx context.Context, link *domain.PendingTransferLink) (*Score, error) {
	score := &Score{}
	now := s.now().UTC()

	// Signal 1: exact registered-wallet address match.
	wallet, err := s.wallets.GetByAddress(ctx, link.WalletAddress)
	switch {
	case err == nil:
		score.ExactMatch = weightExactMatch
		score.CandidateUserID = wallet.UserID
		score.CandidateWalletID = wallet.ID
		score.ExactCandidate = true
	case errors.Is(err, storage.ErrNotFound):
		// No exact match; later signals may still surface a candidate.
	default:
		return nil, fmt.Errorf("lookup wallet %s: %w", link.WalletAddress, err)
	}

	// Signal 2: counterparty seen in recent history.
	counterpart, err := s.counterpartyAddress(ctx, link)
	if err != nil {
		return nil, err
	}
	if counterpart != "" {
		counts, err := s.history.CounterpartyCounts(ctx, counterpart, now.Add(-counterpartLookback))
		if err != nil {
			return nil, fmt.Errorf("counterparty history for %s: %w", counterpart, err)
		}
		if user, n := topCandidate(counts); n >= minCounterpartMatches {
			score.CounterpartHist = weightCounterpart
			if score.CandidateUserID == "" {
				score.CandidateUserID = user
			}
		}
	}

	// Signals 3 and 4 need a candidate user to query against.
	if score.CandidateUserID != "" {
		min := link.Amount * (1 - similarTolerance)
		max := link.Amount * (1 + similarTolerance)
		n, err := s.history.CountAmountRange(ctx, score.CandidateUserID, min, max, now.Add(-similarLookback))
		if err != nil {
			return nil, fmt.Errorf("similar amount history: %w", err)
		}
		if n >= 1 {
			score.SimilarAmount = weightSimilarAmount
		}
	}

	// Signal 4: only when signal 1 already identified the candidate.
	if score.ExactCandidate {
		window := time.Duration(link.TimeWindowHours) * time.Hour
		at := link.CreatedAt
		n, err := s.history.CountInRange(ctx, score.CandidateUserID, at.Add(-window), at.Add(window), link.Signature)
		if err != nil {
			return nil, fmt.Errorf("time window history: %w", err)
		}
		score.TimeWindow = weightTimeWindowEach * float64(n)
	}

	score.Total = clamp(score.ExactMatch + score.CounterpartHist + score.SimilarAmount + score.TimeWindow)
	return score, nil
}

// counterpartyAddress resolves the other side of the transfer from the
// raw event log.
func (s *Scorer) counterpartyAddress(ctx context.Context, link *domain.PendingTransferLink) (string, error) {
	event, err := s.rawEvents.GetBySignature(ctx, link.Signature, link.WalletAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("lookup raw event %s: %w", link.Signature, err)
	}

	if link.TransferType == domain.TransferIncoming {
		if event.FromAddress != nil {
			return *event.FromAddress, nil
		}
	} else if event.ToAddress != nil {
		return *event.ToAddress, nil
	}
	return "", nil
}

// topCandidate returns the user with the most counterparty matches.
// Ties break on the smallest user id to keep scoring deterministic.
func topCandidate(counts map[string]int) (string, int) {
	users := make([]string, 0, len(counts))
	for u := range counts {
		users = append(users, u)
	}
	sort.Strings(users)

	best, bestN := "", 0
	for _, u := range users {
		if counts[u] > bestN {
			best, bestN = u, counts[u]
		}
	}
	return best, bestN
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
