package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a wallet. Returns ErrDuplicateKey if the id or address exists.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.ID == "" || w.UserID == "" || w.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO wallets (id, user_id, address, name, created_at)
		VALUES ($1, $2, $3, $4, now())
	`

	_, err := s.pool.Exec(ctx, query, w.ID, w.UserID, w.Address, w.Name)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByAddress retrieves a wallet by its chain address.
func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, address, name, created_at
		FROM wallets
		WHERE address = $1
	`

	return s.get(ctx, query, address)
}

// GetByID retrieves a wallet by id.
func (s *WalletStore) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	query := `
		SELECT id, user_id, address, name, created_at
		FROM wallets
		WHERE id = $1
	`

	return s.get(ctx, query, id)
}

// ListByUser returns a user's wallets.
func (s *WalletStore) ListByUser(ctx context.Context, userID string) ([]*domain.Wallet, error) {
	query := `
		SELECT id, user_id, address, name, created_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets by user: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

func (s *WalletStore) get(ctx context.Context, query string, args ...any) (*domain.Wallet, error) {
	w, err := scanWallet(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Address, &w.Name, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
