// Package solana provides the JSON-RPC HTTP client and wire types used to
// fetch transaction detail from a ledger node, plus address validation.
package solana

// LamportsPerSOL converts the chain base unit to display units.
const LamportsPerSOL = 1_000_000_000

// Transaction is the parsed result of a getTransaction call.
type Transaction struct {
	Signature    string
	Slot         int64
	BlockTime    int64 // unix seconds, 0 when the node omits it
	Fee          uint64
	PreBalances  []uint64
	PostBalances []uint64
	AccountKeys  []string
	Err          any    // non-nil for ledger-reported execution errors
	RawJSON      []byte // original result payload for the audit log
}

// Failed reports whether the ledger recorded an execution error.
func (t *Transaction) Failed() bool {
	return t.Err != nil
}

// BalanceDelta returns post − pre for account index i in lamports.
func (t *Transaction) BalanceDelta(i int) int64 {
	if i < 0 || i >= len(t.PreBalances) || i >= len(t.PostBalances) {
		return 0
	}
	return int64(t.PostBalances[i]) - int64(t.PreBalances[i])
}

// ToSOL converts lamports to SOL display units.
func ToSOL(lamports int64) float64 {
	return float64(lamports) / LamportsPerSOL
}
