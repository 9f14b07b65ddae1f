package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// NotificationStore implements storage.NotificationStore using PostgreSQL.
type NotificationStore struct {
	pool *Pool
}

// NewNotificationStore creates a new NotificationStore.
func NewNotificationStore(pool *Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.NotificationStore = (*NotificationStore)(nil)

// Insert adds a record in pending status before delivery is attempted.
func (s *NotificationStore) Insert(ctx context.Context, n *domain.NotificationRecord) error {
	if n == nil || n.ID == "" || n.UserID == "" {
		return storage.ErrInvalidInput
	}

	var data []byte
	if len(n.Data) > 0 {
		var err error
		data, err = json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshal notification data: %w", err)
		}
	}

	query := `
		INSERT INTO user_notifications (
			id, user_id, type, title, message, data, priority, status, created_at, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		data,
		string(n.Priority),
		string(n.Status),
		createdAt,
		n.SentAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// UpdateStatus records the aggregate delivery outcome.
func (s *NotificationStore) UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus, sentAt *time.Time) error {
	query := `
		UPDATE user_notifications
		SET status = $2, sent_at = $3
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, id, string(status), sentAt)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByUser returns records for a user, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.NotificationRecord, error) {
	query := `
		SELECT id, user_id, type, title, message, data, priority, status, created_at, sent_at
		FROM user_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var records []*domain.NotificationRecord
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		records = append(records, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}
	return records, nil
}

func scanNotification(row pgx.Row) (*domain.NotificationRecord, error) {
	var n domain.NotificationRecord
	var data []byte
	var priority, status string

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&data,
		&priority,
		&status,
		&n.CreatedAt,
		&n.SentAt,
	)
	if err != nil {
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	n.Priority = domain.NotificationPriority(priority)
	n.Status = domain.NotificationStatus(status)
	return &n, nil
}
