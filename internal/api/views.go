package api

import (
	"time"

	"solana-autolink/internal/domain"
)

// linkViewModel is the JSON shape of a pending transfer link.
type linkViewModel struct {
	ID                  string     `json:"id"`
	Signature           string     `json:"signature"`
	WalletAddress       string     `json:"walletAddress"`
	Amount              float64    `json:"amount"`
	TokenMint           *string    `json:"tokenMint,omitempty"`
	TransferType        string     `json:"transferType"`
	ConfidenceScore     float64    `json:"confidenceScore"`
	AutoLinkStatus      string     `json:"autoLinkStatus"`
	LinkedUserID        *string    `json:"linkedUserId,omitempty"`
	LinkedWalletID      *string    `json:"linkedWalletId,omitempty"`
	LinkedTransactionID *string    `json:"linkedTransactionId,omitempty"`
	Attempts            int        `json:"attempts"`
	LastAttemptAt       *time.Time `json:"lastAttemptAt,omitempty"`
	ExpiresAt           time.Time  `json:"expiresAt"`
	CreatedAt           time.Time  `json:"createdAt"`
}

func linkView(l *domain.PendingTransferLink) *linkViewModel {
	return &linkViewModel{
		ID:                  l.ID,
		Signature:           l.Signature,
		WalletAddress:       l.WalletAddress,
		Amount:              l.Amount,
		TokenMint:           l.TokenMint,
		TransferType:        string(l.TransferType),
		ConfidenceScore:     l.ConfidenceScore,
		AutoLinkStatus:      string(l.AutoLinkStatus),
		LinkedUserID:        l.LinkedUserID,
		LinkedWalletID:      l.LinkedWalletID,
		LinkedTransactionID: l.LinkedTransactionID,
		Attempts:            l.Attempts,
		LastAttemptAt:       l.LastAttemptAt,
		ExpiresAt:           l.ExpiresAt,
		CreatedAt:           l.CreatedAt,
	}
}

func linkViews(links []*domain.PendingTransferLink) []*linkViewModel {
	out := make([]*linkViewModel, 0, len(links))
	for _, l := range links {
		out = append(out, linkView(l))
	}
	return out
}

// settingsView is the JSON shape of auto-link settings.
type settingsView struct {
	UserID              string  `json:"userId"`
	WalletID            string  `json:"walletId"`
	Enabled             bool    `json:"enabled"`
	MinConfidenceScore  float64 `json:"minConfidenceScore"`
	TimeWindowHours     int     `json:"timeWindowHours"`
	NotificationEnabled bool    `json:"notificationEnabled"`
	AutoConfirmEnabled  bool    `json:"autoConfirmEnabled"`
}

func settingsViewOf(s *domain.AutoLinkSettings) *settingsView {
	return &settingsView{
		UserID:              s.UserID,
		WalletID:            s.WalletID,
		Enabled:             s.Enabled,
		MinConfidenceScore:  s.MinConfidenceScore,
		TimeWindowHours:     s.TimeWindowHours,
		NotificationEnabled: s.NotificationEnabled,
		AutoConfirmEnabled:  s.AutoConfirmEnabled,
	}
}

// walletView is the JSON shape of a registered wallet.
type walletView struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

func walletViews(wallets []*domain.Wallet) []*walletView {
	out := make([]*walletView, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, &walletView{ID: w.ID, UserID: w.UserID, Address: w.Address, Name: w.Name})
	}
	return out
}

// subscriptionView is the JSON shape of a stream subscription.
type subscriptionView struct {
	UserID         string `json:"userId"`
	WalletAddress  string `json:"walletAddress"`
	Type           string `json:"type"`
	SubscriptionID *int64 `json:"subscriptionId,omitempty"`
	IsActive       bool   `json:"isActive"`
}

func subscriptionViewOf(s *domain.StreamSubscription) *subscriptionView {
	return &subscriptionView{
		UserID:         s.UserID,
		WalletAddress:  s.WalletAddress,
		Type:           string(s.SubscriptionType),
		SubscriptionID: s.SubscriptionID,
		IsActive:       s.IsActive,
	}
}
