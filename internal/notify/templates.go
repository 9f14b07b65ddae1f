// Package notify builds and delivers push notifications with per-user
// preference, category and quiet-hours policy.
package notify

import (
	"fmt"

	"solana-autolink/internal/domain"
)

// Template kinds. The kind selects the category preference flag and the
// default priority.
const (
	KindTransactionReceived = "transaction_received"
	KindTransactionSent     = "transaction_sent"
	KindTransactionSwap     = "transaction_swap"
	KindTransactionStake    = "transaction_stake"
	KindAutoLinkSuccess     = "autolink_success"
	KindAutoLinkReview      = "autolink_review"
	KindPriceAlertUp        = "price_alert_up"
	KindPriceAlertDown      = "price_alert_down"
	KindSecurityAlert       = "security_alert"
)

// PushAction is one action button rendered on the notification.
type PushAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// PushPayload is the JSON body posted to each push endpoint.
type PushPayload struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon,omitempty"`
	Badge              string         `json:"badge,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
	Actions            []PushAction   `json:"actions,omitempty"`
	Tag                string         `json:"tag,omitempty"`
	Renotify           bool           `json:"renotify,omitempty"`
	RequireInteraction bool           `json:"requireInteraction,omitempty"`
}

const (
	defaultIcon  = "/icons/icon-192.png"
	defaultBadge = "/icons/badge-72.png"
)

// BuildPayload renders the payload for a template kind. Unknown kinds get a
// generic rendering so a new producer-side kind degrades instead of dropping.
func BuildPayload(kind string, args map[string]any) *PushPayload {
	p := &PushPayload{
		Icon:  defaultIcon,
		Badge: defaultBadge,
		Tag:   kind,
		Data: map[string]any{
			"notificationType": kind,
			"url":              "/wallet",
		},
	}
	for k, v := range args {
		p.Data[k] = v
	}

	amount, _ := args["amount"].(float64)
	symbol, _ := args["symbol"].(string)
	if symbol == "" {
		symbol = "SOL"
	}

	switch kind {
	case KindTransactionReceived:
		p.Title = "Funds received"
		p.Body = fmt.Sprintf("You received %s", formatAmount(amount, symbol))
		p.Actions = []PushAction{{Action: "view", Title: "View transaction"}}
	case KindTransactionSent:
		p.Title = "Transfer sent"
		p.Body = fmt.Sprintf("You sent %s", formatAmount(amount, symbol))
		p.Actions = []PushAction{{Action: "view", Title: "View transaction"}}
	case KindTransactionSwap:
		p.Title = "Swap completed"
		p.Body = fmt.Sprintf("Swap of %s completed", formatAmount(amount, symbol))
	case KindTransactionStake:
		p.Title = "Stake updated"
		p.Body = fmt.Sprintf("Stake of %s confirmed", formatAmount(amount, symbol))
	case KindAutoLinkSuccess:
		p.Title = "Transaction linked"
		p.Body = fmt.Sprintf("A transfer of %s was linked to your account", formatAmount(amount, symbol))
		p.Data["url"] = "/wallet/activity"
	case KindAutoLinkReview:
		p.Title = "Transaction needs review"
		p.Body = fmt.Sprintf("A transfer of %s could not be linked automatically", formatAmount(amount, symbol))
		p.Data["url"] = "/wallet/review"
		p.Actions = []PushAction{
			{Action: "confirm", Title: "Confirm"},
			{Action: "dismiss", Title: "Not mine"},
		}
		p.RequireInteraction = true
	case KindPriceAlertUp:
		p.Title = fmt.Sprintf("%s is up", symbol)
		p.Body = fmt.Sprintf("%s crossed your target price", symbol)
		p.Data["url"] = "/markets"
		p.Renotify = true
	case KindPriceAlertDown:
		p.Title = fmt.Sprintf("%s is down", symbol)
		p.Body = fmt.Sprintf("%s dropped below your target price", symbol)
		p.Data["url"] = "/markets"
		p.Renotify = true
	case KindSecurityAlert:
		p.Title = "Security alert"
		p.Body = "Unusual activity detected on your account"
		p.Data["url"] = "/settings/security"
		p.RequireInteraction = true
	default:
		p.Title = "Notification"
		p.Body = "You have a new notification"
	}

	return p
}

// PriorityFor returns the default priority for a template kind.
func PriorityFor(kind string) domain.NotificationPriority {
	switch kind {
	case KindSecurityAlert:
		return domain.PriorityUrgent
	case KindAutoLinkReview:
		return domain.PriorityHigh
	case KindPriceAlertUp, KindPriceAlertDown:
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}

// categoryEnabled maps a kind to its preference flag.
func categoryEnabled(kind string, p *domain.NotificationPreferences) bool {
	switch kind {
	case KindTransactionReceived, KindTransactionSent, KindTransactionSwap, KindTransactionStake:
		return p.TransactionsEnabled
	case KindAutoLinkSuccess, KindAutoLinkReview:
		return p.AutoLinkEnabled
	case KindPriceAlertUp, KindPriceAlertDown:
		return p.PriceAlertsEnabled
	case KindSecurityAlert:
		return p.SecurityEnabled
	default:
		return true
	}
}

func formatAmount(amount float64, symbol string) string {
	if amount == 0 {
		return symbol
	}
	return fmt.Sprintf("%.4f %s", amount, symbol)
}
