package domain

import "time"

// NotificationStatus is the delivery state of a notification record.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationPriority orders user-facing urgency. Only urgent may bypass
// quiet hours, and only when the user opted in.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationRecord is persisted before delivery is attempted; status is
// updated once fan-out completes.
type NotificationRecord struct {
	ID        string // uuid
	UserID    string
	Type      string // template kind, e.g. autolink_success
	Title     string
	Message   string
	Data      map[string]any
	Priority  NotificationPriority
	Status    NotificationStatus
	CreatedAt time.Time
	SentAt    *time.Time
}

// PushEndpoint is one per-device delivery target. Endpoints are
// deactivated on permanent delivery failure, never deleted.
type PushEndpoint struct {
	ID        string // uuid
	UserID    string
	URL       string
	P256DH    string // client public key
	Auth      string // client auth secret
	IsActive  bool
	CreatedAt time.Time
}

// NotificationPreferences holds per-user delivery policy.
type NotificationPreferences struct {
	UserID                 string
	PushEnabled            bool
	TransactionsEnabled    bool
	AutoLinkEnabled        bool
	PriceAlertsEnabled     bool
	SecurityEnabled        bool
	QuietHoursStart        string // "HH:MM", empty disables quiet hours
	QuietHoursEnd          string // "HH:MM"; end < start means cross-midnight
	QuietHoursBypassUrgent bool   // urgent priority may bypass quiet hours
}

// DefaultNotificationPreferences returns the policy for users without a row.
func DefaultNotificationPreferences(userID string) *NotificationPreferences {
	return &NotificationPreferences{
		UserID:              userID,
		PushEnabled:         true,
		TransactionsEnabled: true,
		AutoLinkEnabled:     true,
		PriceAlertsEnabled:  true,
		SecurityEnabled:     true,
	}
}
