package domain

import "time"

// SubscriptionType selects the node-side subscription method.
type SubscriptionType string

const (
	SubAccount   SubscriptionType = "account"   // accountSubscribe: balance changes
	SubLogs      SubscriptionType = "logs"      // logsSubscribe: logs mentioning an address
	SubSignature SubscriptionType = "signature" // signatureSubscribe: one signature reaching commitment
)

// Valid reports whether t is a known subscription type.
func (t SubscriptionType) Valid() bool {
	switch t {
	case SubAccount, SubLogs, SubSignature:
		return true
	}
	return false
}

// StreamSubscription is the durable record of one node subscription,
// keyed by (user, address, type). The remote SubscriptionID is captured
// once the node confirms; an active row is replayed after every reconnect.
type StreamSubscription struct {
	UserID             string
	WalletAddress      string
	SubscriptionType   SubscriptionType
	SubscriptionID     *int64 // remote id assigned by the node, nil until confirmed
	IsActive           bool
	LastNotificationAt *time.Time
	CreatedAt          time.Time
}
