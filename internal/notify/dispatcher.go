package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/storage"
)

// Dispatcher persists notification records and fans them out to a user's
// push endpoints, honoring preferences and quiet hours.
type Dispatcher struct {
	records   storage.NotificationStore
	endpoints storage.PushEndpointStore
	prefs     storage.PreferencesStore
	sender    Sender
	logger    *log.Logger
	now       func() time.Time
}

// Options contains configuration for creating a Dispatcher.
type Options struct {
	NotificationStore storage.NotificationStore
	PushEndpointStore storage.PushEndpointStore
	PreferencesStore  storage.PreferencesStore
	Sender            Sender
	Logger            *log.Logger
	Now               func() time.Time
}

// New creates a new Dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sender := opts.Sender
	if sender == nil {
		sender = NewHTTPSender(nil)
	}
	return &Dispatcher{
		records:   opts.NotificationStore,
		endpoints: opts.PushEndpointStore,
		prefs:     opts.PreferencesStore,
		sender:    sender,
		logger:    logger,
		now:       now,
	}
}

// Dispatch renders the template and delivers it to every active endpoint of
// the user. Suppressed notifications (push disabled, category disabled, or
// quiet hours without an urgent bypass) return a nil record and no error.
// The record is persisted in pending status before the first delivery
// attempt and settles to sent when at least one endpoint accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, userID, kind string, args map[string]any) (*domain.NotificationRecord, error) {
	prefs, err := d.prefs.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		prefs = domain.DefaultNotificationPreferences(userID)
	}

	priority := PriorityFor(kind)

	// Suppression checks, cheapest first.
	if !prefs.PushEnabled {
		return nil, nil
	}
	if !categoryEnabled(kind, prefs) {
		return nil, nil
	}
	if InQuietHours(prefs.QuietHoursStart, prefs.QuietHoursEnd, d.now()) {
		if !(priority == domain.PriorityUrgent && prefs.QuietHoursBypassUrgent) {
			return nil, nil
		}
	}

	payload := BuildPayload(kind, args)

	record := &domain.NotificationRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Title:     payload.Title,
		Message:   payload.Body,
		Data:      payload.Data,
		Priority:  priority,
		Status:    domain.NotificationPending,
		CreatedAt: d.now().UTC(),
	}
	if err := d.records.Insert(ctx, record); err != nil {
		return nil, err
	}

	delivered := d.fanOut(ctx, userID, payload)
	observability.RecordNotification(kind, delivered > 0)

	status := domain.NotificationFailed
	var sentAt *time.Time
	if delivered > 0 {
		status = domain.NotificationSent
		at := d.now().UTC()
		sentAt = &at
	}
	if err := d.records.UpdateStatus(ctx, record.ID, status, sentAt); err != nil {
		d.logger.Printf("Error updating notification %s status: %v", record.ID, err)
	}
	record.Status = status
	record.SentAt = sentAt
	return record, nil
}

// fanOut delivers the payload to every active endpoint in parallel and
// returns the number of successful deliveries. Endpoints reported gone by
// the push service are deactivated.
func (d *Dispatcher) fanOut(ctx context.Context, userID string, payload *PushPayload) int {
	endpoints, err := d.endpoints.ListActiveByUser(ctx, userID)
	if err != nil {
		d.logger.Printf("Error listing endpoints for %s: %v", userID, err)
		return 0
	}
	if len(endpoints) == 0 {
		return 0
	}

	var delivered int64
	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep *domain.PushEndpoint) {
			defer wg.Done()
			permanent, err := d.sender.Send(ctx, ep, payload)
			if err == nil {
				atomic.AddInt64(&delivered, 1)
				return
			}
			d.logger.Printf("Push to endpoint %s failed: %v", ep.ID, err)
			if permanent {
				if err := d.endpoints.Deactivate(ctx, ep.ID); err != nil {
					d.logger.Printf("Error deactivating endpoint %s: %v", ep.ID, err)
				}
			}
		}(ep)
	}
	wg.Wait()

	return int(atomic.LoadInt64(&delivered))
}

// NotifyAutoLinked reports a successful automatic link to the user.
// Best-effort: failures are logged, never surfaced to the caller.
func (d *Dispatcher) NotifyAutoLinked(ctx context.Context, userID string, link *domain.PendingTransferLink, score float64) {
	_, err := d.Dispatch(ctx, userID, KindAutoLinkSuccess, map[string]any{
		"amount":    link.Amount,
		"signature": link.Signature,
		"direction": string(link.TransferType),
		"score":     score,
	})
	if err != nil {
		d.logger.Printf("Error dispatching auto-link notification for %s: %v", link.Signature, err)
	}
}

// NotifyManualReview asks the user to confirm an ambiguous link.
func (d *Dispatcher) NotifyManualReview(ctx context.Context, userID string, link *domain.PendingTransferLink, score float64) {
	_, err := d.Dispatch(ctx, userID, KindAutoLinkReview, map[string]any{
		"amount":    link.Amount,
		"signature": link.Signature,
		"direction": string(link.TransferType),
		"score":     score,
	})
	if err != nil {
		d.logger.Printf("Error dispatching review notification for %s: %v", link.Signature, err)
	}
}
