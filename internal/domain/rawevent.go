package domain

// RawEvent is one append-only row of the transaction stream log. Every
// PendingTransferLink traces back to exactly one RawEvent via signature.
type RawEvent struct {
	Signature       string
	WalletAddress   string
	BlockTime       int64 // unix seconds, 0 when the node omits it
	Slot            int64
	TransactionType string  // transfer, token_transfer, unknown
	Amount          float64 // SOL
	FromAddress     *string
	ToAddress       *string
	Fee             float64 // SOL
	Success         bool    // false for ledger-reported execution errors
	RawPayload      []byte  // original JSON for audit
}
