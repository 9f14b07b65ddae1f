package matching

import (
	"fmt"

	"solana-autolink/internal/domain"
)

// The link state machine. Automatic transitions are driven exclusively by
// the engine's scoring passes; manual_review has no automated exit and can
// only be resolved by an explicit operator action.
//
//	pending ──auto──> linked        (terminal)
//	pending ──auto──> manual_review
//	pending ──auto──> ignored       (terminal, attempts >= MaxAttempts only)
//	manual_review ──operator──> linked | ignored

// MaxAttempts is the scoring attempt budget before a low-confidence link
// is ignored.
const MaxAttempts = 5

// CanAutoTransition reports whether the engine may move a link from one
// status to another during a scoring pass.
func CanAutoTransition(from, to domain.AutoLinkStatus) bool {
	if from != domain.StatusPending {
		return false
	}
	switch to {
	case domain.StatusLinked, domain.StatusManualReview, domain.StatusIgnored:
		return true
	}
	return false
}

// CanResolve reports whether an operator resolution may move a link from
// one status to another.
func CanResolve(from, to domain.AutoLinkStatus) bool {
	if from != domain.StatusManualReview {
		return false
	}
	return to == domain.StatusLinked || to == domain.StatusIgnored
}

// transitionError builds the error reported for a rejected transition.
func transitionError(from, to domain.AutoLinkStatus) error {
	return fmt.Errorf("illegal transition %s -> %s", from, to)
}
