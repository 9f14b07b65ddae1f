package postgres

import (
	"context"
	"fmt"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// PushEndpointStore implements storage.PushEndpointStore using PostgreSQL.
type PushEndpointStore struct {
	pool *Pool
}

// NewPushEndpointStore creates a new PushEndpointStore.
func NewPushEndpointStore(pool *Pool) *PushEndpointStore {
	return &PushEndpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PushEndpointStore = (*PushEndpointStore)(nil)

// Insert adds a new endpoint. Returns ErrDuplicateKey if (userId, url) exists.
func (s *PushEndpointStore) Insert(ctx context.Context, e *domain.PushEndpoint) error {
	if e == nil || e.ID == "" || e.UserID == "" || e.URL == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO push_subscriptions (id, user_id, url, p256dh, auth, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`

	_, err := s.pool.Exec(ctx, query, e.ID, e.UserID, e.URL, e.P256DH, e.Auth, e.IsActive)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert push endpoint: %w", err)
	}
	return nil
}

// ListActiveByUser returns a user's active endpoints.
func (s *PushEndpointStore) ListActiveByUser(ctx context.Context, userID string) ([]*domain.PushEndpoint, error) {
	query := `
		SELECT id, user_id, url, p256dh, auth, is_active, created_at
		FROM push_subscriptions
		WHERE user_id = $1 AND is_active
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list push endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*domain.PushEndpoint
	for rows.Next() {
		var e domain.PushEndpoint
		err := rows.Scan(&e.ID, &e.UserID, &e.URL, &e.P256DH, &e.Auth, &e.IsActive, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan push endpoint row: %w", err)
		}
		endpoints = append(endpoints, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push endpoint rows: %w", err)
	}
	return endpoints, nil
}

// Deactivate marks one endpoint inactive after a permanent delivery failure.
func (s *PushEndpointStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE push_subscriptions SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate push endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
