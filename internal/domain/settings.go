package domain

import "time"

// Default auto-link parameters applied when a wallet has no settings row.
const (
	DefaultMinConfidenceScore = 0.8
	DefaultTimeWindowHours    = 24
)

// AutoLinkSettings parameterizes matching for one (user, wallet) pair.
// Created and updated through the control API, read by the matching engine.
type AutoLinkSettings struct {
	UserID              string
	WalletID            string
	Enabled             bool
	MinConfidenceScore  float64 // threshold for automatic linking
	TimeWindowHours     int     // matching window for new links
	NotificationEnabled bool
	AutoConfirmEnabled  bool // skip manual confirmation on linked transfers
	UpdatedAt           time.Time
}

// DefaultAutoLinkSettings returns the settings used for wallets without a row.
func DefaultAutoLinkSettings(userID, walletID string) *AutoLinkSettings {
	return &AutoLinkSettings{
		UserID:              userID,
		WalletID:            walletID,
		Enabled:             true,
		MinConfidenceScore:  DefaultMinConfidenceScore,
		TimeWindowHours:     DefaultTimeWindowHours,
		NotificationEnabled: true,
	}
}
