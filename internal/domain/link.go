package domain

import "time"

// TransferType is the direction of a transfer relative to the observed wallet.
type TransferType string

const (
	TransferIncoming TransferType = "incoming"
	TransferOutgoing TransferType = "outgoing"
)

// AutoLinkStatus is the lifecycle state of a pending transfer link.
// Transitions are enforced by the matching state machine; no other
// component mutates it.
type AutoLinkStatus string

const (
	StatusPending      AutoLinkStatus = "pending"
	StatusLinked       AutoLinkStatus = "linked"
	StatusManualReview AutoLinkStatus = "manual_review"
	StatusIgnored      AutoLinkStatus = "ignored"
)

// Terminal reports whether the status permits no further transitions.
func (s AutoLinkStatus) Terminal() bool {
	return s == StatusLinked || s == StatusIgnored
}

// Valid reports whether s is one of the known statuses.
func (s AutoLinkStatus) Valid() bool {
	switch s {
	case StatusPending, StatusLinked, StatusManualReview, StatusIgnored:
		return true
	}
	return false
}

// PendingTransferLink is the unit of work for the auto-link pipeline.
// Created by the parser on a new on-chain event, mutated only by the
// matching engine, never deleted (retained for audit).
type PendingTransferLink struct {
	ID                  string         // uuid
	Signature           string         // ledger transaction signature, unique
	WalletAddress       string         // observed wallet address
	Amount              float64        // SOL (display units)
	TokenMint           *string        // SPL mint for token transfers, nil for native
	TransferType        TransferType   // incoming or outgoing
	ConfidenceScore     float64        // [0,1], recomputed fresh each scoring pass
	AutoLinkStatus      AutoLinkStatus // pending, linked, manual_review, ignored
	LinkedUserID        *string        // set together with the two below on linking
	LinkedWalletID      *string
	LinkedTransactionID *string
	TimeWindowHours     int // matching window from AutoLinkSettings
	Attempts            int // monotonically non-decreasing claim counter
	LastAttemptAt       *time.Time
	ExpiresAt           time.Time // CreatedAt + TimeWindowHours; never scored past this
	CreatedAt           time.Time
}

// Expired reports whether the link is past its matching window at now.
func (l *PendingTransferLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
