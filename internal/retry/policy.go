// Package retry provides the bounded exponential backoff policy shared by
// the stream ingestor and outbound RPC calls.
package retry

import "time"

// Policy describes a bounded exponential backoff schedule.
// Attempts are numbered from 1; Delay(k) = BaseDelay × Multiplier^(k−1),
// capped at MaxDelay. After MaxAttempts the caller must stop retrying.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy is the ingestor's reconnect schedule:
// 1s, 2s, 4s, ... capped at 30s, 10 attempts, then fatal.
func DefaultReconnectPolicy() Policy {
	return Policy{
		MaxAttempts: 10,
		BaseDelay:   1 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// DefaultRPCPolicy is the schedule for outbound transaction-detail fetches.
func DefaultRPCPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
	}
}

// Delay returns the wait before attempt k (1-based). Attempts outside
// [1, MaxAttempts] return 0; callers should check Exhausted first.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Exhausted(attempt) {
		return 0
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt k exceeds the attempt budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt > p.MaxAttempts
}
