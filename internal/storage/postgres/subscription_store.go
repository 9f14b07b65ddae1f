package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// SubscriptionStore implements storage.SubscriptionStore using PostgreSQL.
type SubscriptionStore struct {
	pool *Pool
}

// NewSubscriptionStore creates a new SubscriptionStore.
func NewSubscriptionStore(pool *Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubscriptionStore = (*SubscriptionStore)(nil)

// Upsert creates or reactivates the row for (userId, address, type). An
// existing remote id survives when the new one is nil; it is rebound
// separately once the node confirms.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub *domain.StreamSubscription) error {
	if sub == nil || sub.UserID == "" || sub.WalletAddress == "" || !sub.SubscriptionType.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO stream_subscriptions (
			user_id, wallet_address, subscription_type, subscription_id, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id, wallet_address, subscription_type) DO UPDATE SET
			subscription_id = COALESCE(EXCLUDED.subscription_id, stream_subscriptions.subscription_id),
			is_active = EXCLUDED.is_active
	`

	_, err := s.pool.Exec(ctx, query,
		sub.UserID,
		sub.WalletAddress,
		string(sub.SubscriptionType),
		sub.SubscriptionID,
		sub.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// SetRemoteID records the node-assigned subscription id once confirmed.
func (s *SubscriptionStore) SetRemoteID(ctx context.Context, userID, address string, kind domain.SubscriptionType, remoteID int64) error {
	query := `
		UPDATE stream_subscriptions
		SET subscription_id = $4
		WHERE user_id = $1 AND wallet_address = $2 AND subscription_type = $3
	`

	tag, err := s.pool.Exec(ctx, query, userID, address, string(kind), remoteID)
	if err != nil {
		return fmt.Errorf("set subscription remote id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Deactivate marks the row inactive, keeping it for audit.
func (s *SubscriptionStore) Deactivate(ctx context.Context, userID, address string, kind domain.SubscriptionType) error {
	query := `
		UPDATE stream_subscriptions
		SET is_active = FALSE
		WHERE user_id = $1 AND wallet_address = $2 AND subscription_type = $3
	`

	tag, err := s.pool.Exec(ctx, query, userID, address, string(kind))
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListActive returns every active subscription for reconnect replay.
func (s *SubscriptionStore) ListActive(ctx context.Context) ([]*domain.StreamSubscription, error) {
	query := `
		SELECT user_id, wallet_address, subscription_type, subscription_id,
		       is_active, last_notification_at, created_at
		FROM stream_subscriptions
		WHERE is_active
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.StreamSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription rows: %w", err)
	}
	return subs, nil
}

// TouchNotification updates lastNotificationAt for the row holding a remote
// subscription id.
func (s *SubscriptionStore) TouchNotification(ctx context.Context, remoteID int64, at time.Time) error {
	query := `
		UPDATE stream_subscriptions
		SET last_notification_at = $2
		WHERE subscription_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, remoteID, at)
	if err != nil {
		return fmt.Errorf("touch subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.StreamSubscription, error) {
	var sub domain.StreamSubscription
	var kind string

	err := row.Scan(
		&sub.UserID,
		&sub.WalletAddress,
		&kind,
		&sub.SubscriptionID,
		&sub.IsActive,
		&sub.LastNotificationAt,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.SubscriptionType = domain.SubscriptionType(kind)
	return &sub, nil
}
