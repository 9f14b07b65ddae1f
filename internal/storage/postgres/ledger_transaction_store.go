package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// LedgerTransactionStore implements storage.LedgerTransactionStore using
// PostgreSQL. The aggregate queries back the counterparty, amount and
// time-window matching signals.
type LedgerTransactionStore struct {
	pool *Pool
}

// NewLedgerTransactionStore creates a new LedgerTransactionStore.
func NewLedgerTransactionStore(pool *Pool) *LedgerTransactionStore {
	return &LedgerTransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerTransactionStore = (*LedgerTransactionStore)(nil)

// Insert adds a transaction. Returns ErrDuplicateKey if the signature
// already exists for the user.
func (s *LedgerTransactionStore) Insert(ctx context.Context, t *domain.LedgerTransaction) error {
	if t == nil || t.ID == "" || t.UserID == "" || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO ledger_transactions (
			id, user_id, wallet_id, signature, amount, token_mint,
			transfer_type, counterparty_address, block_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.WalletID,
		t.Signature,
		t.Amount,
		t.TokenMint,
		string(t.TransferType),
		t.CounterpartyAddress,
		t.BlockTime,
		createdAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger transaction: %w", err)
	}
	return nil
}

// ListByUser returns a user's transactions, newest first.
func (s *LedgerTransactionStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.LedgerTransaction, error) {
	query := `
		SELECT id, user_id, wallet_id, signature, amount, token_mint,
		       transfer_type, counterparty_address, block_time, created_at
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.LedgerTransaction
	for rows.Next() {
		t, err := scanLedgerTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger transaction row: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger transaction rows: %w", err)
	}
	return txs, nil
}

// CounterpartyCounts returns, per user id, how many of that user's
// transactions since the cutoff involve the address as counterparty.
func (s *LedgerTransactionStore) CounterpartyCounts(ctx context.Context, address string, since time.Time) (map[string]int, error) {
	query := `
		SELECT user_id, COUNT(*)
		FROM ledger_transactions
		WHERE counterparty_address = $1 AND created_at >= $2
		GROUP BY user_id
	`

	rows, err := s.pool.Query(ctx, query, address, since)
	if err != nil {
		return nil, fmt.Errorf("count counterparties: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("scan counterparty row: %w", err)
		}
		counts[userID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counterparty rows: %w", err)
	}
	return counts, nil
}

// CountAmountRange counts a user's transactions since the cutoff with
// amount in [min, max].
func (s *LedgerTransactionStore) CountAmountRange(ctx context.Context, userID string, min, max float64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_transactions
		WHERE user_id = $1 AND amount >= $2 AND amount <= $3 AND created_at >= $4
	`

	var n int
	if err := s.pool.QueryRow(ctx, query, userID, min, max, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count amount range: %w", err)
	}
	return n, nil
}

// CountInRange counts a user's transactions with createdAt in [start, end],
// excluding one signature.
func (s *LedgerTransactionStore) CountInRange(ctx context.Context, userID string, start, end time.Time, excludeSignature string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_transactions
		WHERE user_id = $1
		  AND created_at >= $2 AND created_at <= $3
		  AND signature <> $4
	`

	var n int
	if err := s.pool.QueryRow(ctx, query, userID, start, end, excludeSignature).Scan(&n); err != nil {
		return 0, fmt.Errorf("count in range: %w", err)
	}
	return n, nil
}

func scanLedgerTransaction(row pgx.Row) (*domain.LedgerTransaction, error) {
	var t domain.LedgerTransaction
	var transferType string

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.WalletID,
		&t.Signature,
		&t.Amount,
		&t.TokenMint,
		&transferType,
		&t.CounterpartyAddress,
		&t.BlockTime,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.TransferType = domain.TransferType(transferType)
	return &t, nil
}
