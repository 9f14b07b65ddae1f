package postgres

import (
	"context"
	"fmt"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// PreferencesStore implements storage.PreferencesStore using PostgreSQL.
type PreferencesStore struct {
	pool *Pool
}

// NewPreferencesStore creates a new PreferencesStore.
func NewPreferencesStore(pool *Pool) *PreferencesStore {
	return &PreferencesStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PreferencesStore = (*PreferencesStore)(nil)

// Get retrieves a user's preferences. Returns ErrNotFound if absent.
func (s *PreferencesStore) Get(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	query := `
		SELECT user_id, push_enabled, transactions_enabled, autolink_enabled,
		       price_alerts_enabled, security_enabled, quiet_hours_start,
		       quiet_hours_end, quiet_hours_bypass_urgent
		FROM user_notification_preferences
		WHERE user_id = $1
	`

	var p domain.NotificationPreferences
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.PushEnabled,
		&p.TransactionsEnabled,
		&p.AutoLinkEnabled,
		&p.PriceAlertsEnabled,
		&p.SecurityEnabled,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&p.QuietHoursBypassUrgent,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

// Upsert creates or replaces a user's preferences.
func (s *PreferencesStore) Upsert(ctx context.Context, p *domain.NotificationPreferences) error {
	if p == nil || p.UserID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO user_notification_preferences (
			user_id, push_enabled, transactions_enabled, autolink_enabled,
			price_alerts_enabled, security_enabled, quiet_hours_start,
			quiet_hours_end, quiet_hours_bypass_urgent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			push_enabled = EXCLUDED.push_enabled,
			transactions_enabled = EXCLUDED.transactions_enabled,
			autolink_enabled = EXCLUDED.autolink_enabled,
			price_alerts_enabled = EXCLUDED.price_alerts_enabled,
			security_enabled = EXCLUDED.security_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			quiet_hours_bypass_urgent = EXCLUDED.quiet_hours_bypass_urgent
	`

	_, err := s.pool.Exec(ctx, query,
		p.UserID,
		p.PushEnabled,
		p.TransactionsEnabled,
		p.AutoLinkEnabled,
		p.PriceAlertsEnabled,
		p.SecurityEnabled,
		p.QuietHoursStart,
		p.QuietHoursEnd,
		p.QuietHoursBypassUrgent,
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}
