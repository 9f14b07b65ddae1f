package storage

import (
	"context"
	"time"

	"solana-autolink/internal/domain"
)

// LinkIdentity carries the three fields set together on a linked transition.
type LinkIdentity struct {
	UserID        string
	WalletID      string
	TransactionID string
}

// LinkStore provides access to pending_transfer_links storage.
// Rows are never deleted; terminal statuses freeze the row.
type LinkStore interface {
	// Insert adds a new link. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, l *domain.PendingTransferLink) error

	// GetBySignature retrieves a link by signature. Returns ErrNotFound if absent.
	GetBySignature(ctx context.Context, signature string) (*domain.PendingTransferLink, error)

	// ListScorable returns up to limit pending links with expiresAt > now,
	// oldest first. When signature is non-empty the result is restricted to
	// that one link. Links whose lastAttemptAt is within cooldown are
	// skipped unless force is set.
	ListScorable(ctx context.Context, now time.Time, cooldown time.Duration, limit int, signature string, force bool) ([]*domain.PendingTransferLink, error)

	// Claim atomically increments attempts and sets lastAttemptAt, but only
	// while the link is still pending and (unless force) outside the
	// cooldown window. Returns false when another trigger claimed the row
	// first. The claim must be durable before scoring begins.
	Claim(ctx context.Context, id string, now time.Time, cooldown time.Duration, force bool) (bool, error)

	// Transition moves a link from one status to another, recording the
	// final score. linked must be non-nil exactly when to == StatusLinked.
	// Returns ErrInvalidTransition when the row is not in the from status.
	Transition(ctx context.Context, id string, from, to domain.AutoLinkStatus, score float64, linked *LinkIdentity) error

	// UpdateScore persists a recomputed score without a status change.
	UpdateScore(ctx context.Context, id string, score float64) error

	// ListByWallet returns links for a wallet address, newest first,
	// optionally filtered by status (empty matches all). A non-positive
	// limit returns all matching rows, here and in the other list methods.
	ListByWallet(ctx context.Context, walletAddress string, status domain.AutoLinkStatus, limit int) ([]*domain.PendingTransferLink, error)

	// ListByStatus returns links in a status, newest first.
	ListByStatus(ctx context.Context, status domain.AutoLinkStatus, limit int) ([]*domain.PendingTransferLink, error)
}

// SettingsStore provides access to auto_link_settings storage.
type SettingsStore interface {
	// Upsert creates or replaces the settings row for (userId, walletId).
	Upsert(ctx context.Context, s *domain.AutoLinkSettings) error

	// Get retrieves settings for (userId, walletId). Returns ErrNotFound if absent.
	Get(ctx context.Context, userID, walletID string) (*domain.AutoLinkSettings, error)

	// GetByWalletID retrieves settings by wallet id alone. Returns ErrNotFound if absent.
	GetByWalletID(ctx context.Context, walletID string) (*domain.AutoLinkSettings, error)
}

// SubscriptionStore provides access to stream_subscriptions storage.
type SubscriptionStore interface {
	// Upsert creates or reactivates the row for (userId, address, type).
	Upsert(ctx context.Context, s *domain.StreamSubscription) error

	// SetRemoteID records the node-assigned subscription id once confirmed.
	SetRemoteID(ctx context.Context, userID, address string, kind domain.SubscriptionType, remoteID int64) error

	// Deactivate marks the row inactive, keeping it for audit.
	Deactivate(ctx context.Context, userID, address string, kind domain.SubscriptionType) error

	// ListActive returns every active subscription for reconnect replay.
	ListActive(ctx context.Context) ([]*domain.StreamSubscription, error)

	// TouchNotification updates lastNotificationAt for the row holding a
	// remote subscription id.
	TouchNotification(ctx context.Context, remoteID int64, at time.Time) error
}

// RawEventStore provides access to the append-only raw_transaction_stream log.
type RawEventStore interface {
	// Insert appends an event. Returns ErrDuplicateKey if
	// (signature, walletAddress) exists.
	Insert(ctx context.Context, e *domain.RawEvent) error

	// GetBySignature retrieves the event observed for a wallet.
	GetBySignature(ctx context.Context, signature, walletAddress string) (*domain.RawEvent, error)

	// ListByWallet returns events for a wallet, newest first.
	ListByWallet(ctx context.Context, walletAddress string, limit int) ([]*domain.RawEvent, error)
}

// NotificationStore provides access to user_notifications storage.
type NotificationStore interface {
	// Insert adds a record in pending status before delivery is attempted.
	Insert(ctx context.Context, n *domain.NotificationRecord) error

	// UpdateStatus records the aggregate delivery outcome.
	UpdateStatus(ctx context.Context, id string, status domain.NotificationStatus, sentAt *time.Time) error

	// ListByUser returns records for a user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.NotificationRecord, error)
}

// PushEndpointStore provides access to push_subscriptions storage.
type PushEndpointStore interface {
	// Insert adds a new endpoint. Returns ErrDuplicateKey if (userId, url) exists.
	Insert(ctx context.Context, e *domain.PushEndpoint) error

	// ListActiveByUser returns a user's active endpoints.
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.PushEndpoint, error)

	// Deactivate marks one endpoint inactive after a permanent delivery failure.
	Deactivate(ctx context.Context, id string) error
}

// PreferencesStore provides access to user_notification_preferences storage.
type PreferencesStore interface {
	// Get retrieves a user's preferences. Returns ErrNotFound if absent.
	Get(ctx context.Context, userID string) (*domain.NotificationPreferences, error)

	// Upsert creates or replaces a user's preferences.
	Upsert(ctx context.Context, p *domain.NotificationPreferences) error
}

// WalletStore provides read access to registered wallet identities.
// The pipeline does not own wallet lifecycle; Insert exists for bootstrap
// and tests.
type WalletStore interface {
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByAddress retrieves a wallet by its chain address.
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)

	// GetByID retrieves a wallet by id.
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)

	// ListByUser returns a user's wallets.
	ListByUser(ctx context.Context, userID string) ([]*domain.Wallet, error)
}

// LedgerTransactionStore provides access to linked ledger transactions and
// the history queries behind the matching signals.
type LedgerTransactionStore interface {
	// Insert adds a transaction. Returns ErrDuplicateKey if the signature
	// already exists for the user.
	Insert(ctx context.Context, t *domain.LedgerTransaction) error

	// ListByUser returns a user's transactions, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.LedgerTransaction, error)

	// CounterpartyCounts returns, per user id, how many of that user's
	// transactions since the cutoff involve the address as counterparty.
	CounterpartyCounts(ctx context.Context, address string, since time.Time) (map[string]int, error)

	// CountAmountRange counts a user's transactions since the cutoff with
	// amount in [min, max].
	CountAmountRange(ctx context.Context, userID string, min, max float64, since time.Time) (int, error)

	// CountInRange counts a user's transactions with createdAt in
	// [start, end], excluding one signature.
	CountInRange(ctx context.Context, userID string, start, end time.Time, excludeSignature string) (int, error)
}

// MatchOutcomeStore is the best-effort analytics sink for scoring passes.
type MatchOutcomeStore interface {
	Insert(ctx context.Context, o *domain.MatchOutcome) error
}
