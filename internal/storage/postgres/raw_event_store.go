package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// RawEventStore implements storage.RawEventStore using PostgreSQL.
// The raw_transaction_stream table is append-only.
type RawEventStore struct {
	pool *Pool
}

// NewRawEventStore creates a new RawEventStore.
func NewRawEventStore(pool *Pool) *RawEventStore {
	return &RawEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RawEventStore = (*RawEventStore)(nil)

// Insert appends an event. Returns ErrDuplicateKey if
// (signature, walletAddress) exists.
func (s *RawEventStore) Insert(ctx context.Context, e *domain.RawEvent) error {
	if e == nil || e.Signature == "" || e.WalletAddress == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO raw_transaction_stream (
			signature, wallet_address, block_time, slot, transaction_type,
			amount, from_address, to_address, fee, success, raw_payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var payload []byte
	if len(e.RawPayload) > 0 {
		payload = e.RawPayload
	}

	_, err := s.pool.Exec(ctx, query,
		e.Signature,
		e.WalletAddress,
		e.BlockTime,
		e.Slot,
		e.TransactionType,
		e.Amount,
		e.FromAddress,
		e.ToAddress,
		e.Fee,
		e.Success,
		payload,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert raw event: %w", err)
	}
	return nil
}

// GetBySignature retrieves the event observed for a wallet.
func (s *RawEventStore) GetBySignature(ctx context.Context, signature, walletAddress string) (*domain.RawEvent, error) {
	query := `
		SELECT signature, wallet_address, block_time, slot, transaction_type,
		       amount, from_address, to_address, fee, success, raw_payload
		FROM raw_transaction_stream
		WHERE signature = $1 AND wallet_address = $2
	`

	e, err := scanRawEvent(s.pool.QueryRow(ctx, query, signature, walletAddress))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get raw event: %w", err)
	}
	return e, nil
}

// ListByWallet returns events for a wallet, newest first.
func (s *RawEventStore) ListByWallet(ctx context.Context, walletAddress string, limit int) ([]*domain.RawEvent, error) {
	query := `
		SELECT signature, wallet_address, block_time, slot, transaction_type,
		       amount, from_address, to_address, fee, success, raw_payload
		FROM raw_transaction_stream
		WHERE wallet_address = $1
		ORDER BY created_at DESC, signature DESC
		LIMIT NULLIF($2, 0)
	`

	rows, err := s.pool.Query(ctx, query, walletAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("list raw events by wallet: %w", err)
	}
	defer rows.Close()

	var events []*domain.RawEvent
	for rows.Next() {
		e, err := scanRawEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw event rows: %w", err)
	}
	return events, nil
}

func scanRawEvent(row pgx.Row) (*domain.RawEvent, error) {
	var e domain.RawEvent

	err := row.Scan(
		&e.Signature,
		&e.WalletAddress,
		&e.BlockTime,
		&e.Slot,
		&e.TransactionType,
		&e.Amount,
		&e.FromAddress,
		&e.ToAddress,
		&e.Fee,
		&e.Success,
		&e.RawPayload,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
