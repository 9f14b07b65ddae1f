package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// LinkStore implements storage.LinkStore using PostgreSQL.
type LinkStore struct {
	pool *Pool
}

// NewLinkStore creates a new LinkStore.
func NewLinkStore(pool *Pool) *LinkStore {
	return &LinkStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LinkStore = (*LinkStore)(nil)

const linkColumns = `
	id, signature, wallet_address, amount, token_mint, transfer_type,
	confidence_score, auto_link_status, linked_user_id, linked_wallet_id,
	linked_transaction_id, time_window_hours, attempts, last_attempt_at,
	expires_at, created_at
`

// Insert adds a new link. Returns ErrDuplicateKey if the signature exists.
func (s *LinkStore) Insert(ctx context.Context, l *domain.PendingTransferLink) error {
	if l == nil || l.ID == "" || l.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pending_transfer_links (
			id, signature, wallet_address, amount, token_mint, transfer_type,
			confidence_score, auto_link_status, time_window_hours, attempts,
			last_attempt_at, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		l.ID,
		l.Signature,
		l.WalletAddress,
		l.Amount,
		l.TokenMint,
		string(l.TransferType),
		l.ConfidenceScore,
		string(l.AutoLinkStatus),
		l.TimeWindowHours,
		l.Attempts,
		l.LastAttemptAt,
		l.ExpiresAt,
		l.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// GetBySignature retrieves a link by signature. Returns ErrNotFound if absent.
func (s *LinkStore) GetBySignature(ctx context.Context, signature string) (*domain.PendingTransferLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM pending_transfer_links
		WHERE signature = $1
	`

	row := s.pool.QueryRow(ctx, query, signature)
	l, err := scanLink(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get link by signature: %w", err)
	}
	return l, nil
}

// ListScorable returns up to limit pending links eligible for a scoring pass,
// oldest first.
func (s *LinkStore) ListScorable(ctx context.Context, now time.Time, cooldown time.Duration, limit int, signature string, force bool) ([]*domain.PendingTransferLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM pending_transfer_links
		WHERE auto_link_status = 'pending'
		  AND expires_at > $1
		  AND ($2 = '' OR signature = $2)
		  AND ($3 OR last_attempt_at IS NULL OR last_attempt_at <= $4)
		ORDER BY created_at ASC, id ASC
		LIMIT $5
	`

	rows, err := s.pool.Query(ctx, query, now, signature, force, now.Add(-cooldown), limit)
	if err != nil {
		return nil, fmt.Errorf("list scorable links: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// Claim atomically increments attempts and stamps lastAttemptAt while the
// link is still pending and outside the cooldown window. The guarded UPDATE
// makes concurrent triggers race safely; the loser sees zero rows affected.
func (s *LinkStore) Claim(ctx context.Context, id string, now time.Time, cooldown time.Duration, force bool) (bool, error) {
	query := `
		UPDATE pending_transfer_links
		SET attempts = attempts + 1, last_attempt_at = $2
		WHERE id = $1
		  AND auto_link_status = 'pending'
		  AND ($3 OR last_attempt_at IS NULL OR last_attempt_at <= $4)
	`

	tag, err := s.pool.Exec(ctx, query, id, now, force, now.Add(-cooldown))
	if err != nil {
		return false, fmt.Errorf("claim link: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish a lost race from a missing row.
	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pending_transfer_links WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check link exists: %w", err)
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// Transition moves a link from one status to another, recording the final
// score. Returns ErrInvalidTransition when the row is not in the from status.
func (s *LinkStore) Transition(ctx context.Context, id string, from, to domain.AutoLinkStatus, score float64, linked *storage.LinkIdentity) error {
	if to == domain.StatusLinked && linked == nil {
		return storage.ErrInvalidInput
	}
	if to != domain.StatusLinked && linked != nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE pending_transfer_links
		SET auto_link_status = $3,
		    confidence_score = $4,
		    linked_user_id = $5,
		    linked_wallet_id = $6,
		    linked_transaction_id = $7
		WHERE id = $1 AND auto_link_status = $2
	`

	var userID, walletID, txID *string
	if linked != nil {
		userID = &linked.UserID
		walletID = &linked.WalletID
		txID = &linked.TransactionID
	}

	tag, err := s.pool.Exec(ctx, query, id, string(from), string(to), score, userID, walletID, txID)
	if err != nil {
		return fmt.Errorf("transition link: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pending_transfer_links WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check link exists: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrInvalidTransition
}

// UpdateScore persists a recomputed score without a status change.
func (s *LinkStore) UpdateScore(ctx context.Context, id string, score float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE pending_transfer_links SET confidence_score = $2 WHERE id = $1`, id, score)
	if err != nil {
		return fmt.Errorf("update link score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByWallet returns links for a wallet address, newest first, optionally
// filtered by status.
func (s *LinkStore) ListByWallet(ctx context.Context, walletAddress string, status domain.AutoLinkStatus, limit int) ([]*domain.PendingTransferLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM pending_transfer_links
		WHERE wallet_address = $1
		  AND ($2 = '' OR auto_link_status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($3, 0)
	`

	rows, err := s.pool.Query(ctx, query, walletAddress, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list links by wallet: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// ListByStatus returns links in a status, newest first.
func (s *LinkStore) ListByStatus(ctx context.Context, status domain.AutoLinkStatus, limit int) ([]*domain.PendingTransferLink, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM pending_transfer_links
		WHERE auto_link_status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`

	rows, err := s.pool.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list links by status: %w", err)
	}
	defer rows.Close()

	return scanLinks(rows)
}

// scanLink scans a single row into a PendingTransferLink.
func scanLink(row pgx.Row) (*domain.PendingTransferLink, error) {
	var l domain.PendingTransferLink
	var transferType, status string

	err := row.Scan(
		&l.ID,
		&l.Signature,
		&l.WalletAddress,
		&l.Amount,
		&l.TokenMint,
		&transferType,
		&l.ConfidenceScore,
		&status,
		&l.LinkedUserID,
		&l.LinkedWalletID,
		&l.LinkedTransactionID,
		&l.TimeWindowHours,
		&l.Attempts,
		&l.LastAttemptAt,
		&l.ExpiresAt,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.TransferType = domain.TransferType(transferType)
	l.AutoLinkStatus = domain.AutoLinkStatus(status)
	return &l, nil
}

// scanLinks scans multiple rows into a slice of PendingTransferLink.
func scanLinks(rows pgx.Rows) ([]*domain.PendingTransferLink, error) {
	var links []*domain.PendingTransferLink

	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link row: %w", err)
		}
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link rows: %w", err)
	}

	return links, nil
}
