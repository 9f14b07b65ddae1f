package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

// SettingsStore implements storage.SettingsStore using PostgreSQL.
type SettingsStore struct {
	pool *Pool
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(pool *Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// Upsert creates or replaces the settings row for (userId, walletId).
func (s *SettingsStore) Upsert(ctx context.Context, set *domain.AutoLinkSettings) error {
	if set == nil || set.UserID == "" || set.WalletID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO auto_link_settings (
			user_id, wallet_id, enabled, min_confidence_score,
			time_window_hours, notification_enabled, auto_confirm_enabled, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id, wallet_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			min_confidence_score = EXCLUDED.min_confidence_score,
			time_window_hours = EXCLUDED.time_window_hours,
			notification_enabled = EXCLUDED.notification_enabled,
			auto_confirm_enabled = EXCLUDED.auto_confirm_enabled,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		set.UserID,
		set.WalletID,
		set.Enabled,
		set.MinConfidenceScore,
		set.TimeWindowHours,
		set.NotificationEnabled,
		set.AutoConfirmEnabled,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// Get retrieves settings for (userId, walletId). Returns ErrNotFound if absent.
func (s *SettingsStore) Get(ctx context.Context, userID, walletID string) (*domain.AutoLinkSettings, error) {
	query := `
		SELECT user_id, wallet_id, enabled, min_confidence_score,
		       time_window_hours, notification_enabled, auto_confirm_enabled, updated_at
		FROM auto_link_settings
		WHERE user_id = $1 AND wallet_id = $2
	`

	return s.get(ctx, query, userID, walletID)
}

// GetByWalletID retrieves settings by wallet id alone. Returns ErrNotFound if absent.
func (s *SettingsStore) GetByWalletID(ctx context.Context, walletID string) (*domain.AutoLinkSettings, error) {
	query := `
		SELECT user_id, wallet_id, enabled, min_confidence_score,
		       time_window_hours, notification_enabled, auto_confirm_enabled, updated_at
		FROM auto_link_settings
		WHERE wallet_id = $1
	`

	return s.get(ctx, query, walletID)
}

func (s *SettingsStore) get(ctx context.Context, query string, args ...any) (*domain.AutoLinkSettings, error) {
	set, err := scanSettings(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return set, nil
}

func scanSettings(row pgx.Row) (*domain.AutoLinkSettings, error) {
	var set domain.AutoLinkSettings

	err := row.Scan(
		&set.UserID,
		&set.WalletID,
		&set.Enabled,
		&set.MinConfidenceScore,
		&set.TimeWindowHours,
		&set.NotificationEnabled,
		&set.AutoConfirmEnabled,
		&set.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &set, nil
}
