package domain

import "time"

// Wallet is the registered custodial wallet identity. The pipeline reads
// wallets to resolve exact address matches; it does not own their lifecycle.
type Wallet struct {
	ID        string // uuid
	UserID    string
	Address   string // base58 public key
	Name      string
	CreatedAt time.Time
}

// LedgerTransaction is a concrete transaction tied to a user account.
// Created by the matching engine on a linked transition; existing rows are
// the history consulted by the counterparty, amount and time-window signals.
type LedgerTransaction struct {
	ID                  string // uuid
	UserID              string
	WalletID            string
	Signature           string
	Amount              float64 // SOL
	TokenMint           *string
	TransferType        TransferType
	CounterpartyAddress string // other side of the transfer, empty if unknown
	BlockTime           int64  // unix seconds
	CreatedAt           time.Time
}
