package clickhouse

import (
	"context"
	"fmt"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// MatchOutcomeStore implements storage.MatchOutcomeStore using ClickHouse.
// Outcomes are append-only; one row per scoring pass per link.
type MatchOutcomeStore struct {
	conn *Conn
}

// NewMatchOutcomeStore creates a new MatchOutcomeStore.
func NewMatchOutcomeStore(conn *Conn) *MatchOutcomeStore {
	return &MatchOutcomeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MatchOutcomeStore = (*MatchOutcomeStore)(nil)

// Insert appends one scoring pass record.
func (s *MatchOutcomeStore) Insert(ctx context.Context, o *domain.MatchOutcome) error {
	if o == nil || o.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO match_outcomes (
			signature, attempt, score,
			exact_match, counterpart_hist, similar_amount, time_window,
			outcome, candidate_user_id, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var candidate string
	if o.CandidateUserID != nil {
		candidate = *o.CandidateUserID
	}

	err := s.conn.Exec(ctx, query,
		o.Signature,
		uint8(o.Attempt),
		o.Score,
		o.ExactMatch,
		o.CounterpartHist,
		o.SimilarAmount,
		o.TimeWindow,
		o.Outcome,
		candidate,
		o.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match outcome: %w", err)
	}
	return nil
}
