// Package dispatch implements notification fan-out: one pending
// alert_notification row per (contact, enabled channel) pair, created in
// contact priority order, idempotent per target.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
	"github.com/guardline/guardline/internal/metrics"
)

// ErrInvalidDeliveryStatus is returned when a delivery callback reports a
// status other than sent or failed.
var ErrInvalidDeliveryStatus = fmt.Errorf("delivery status must be sent or failed")

// Repository defines the persistence operations the dispatcher needs.
type Repository interface {
	InsertNotification(ctx context.Context, notif *db.AlertNotification) (bool, error)
	GetNotification(ctx context.Context, id uuid.UUID) (*db.AlertNotification, error)
	UpdateNotificationDelivery(ctx context.Context, id uuid.UUID, status db.DeliveryStatus, attempt int, errorMsg *string, nextRetryAt *time.Time, sentAt *time.Time) error
}

// Dispatcher records notification intent. Actual transmission is the
// delivery worker's job; the dispatcher only creates pending rows and
// accepts delivery-outcome callbacks.
type Dispatcher struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a dispatcher.
func New(repo Repository, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		logger: logger,
	}
}

// Dispatch fans out an alert to its contacts: for each contact, one pending
// row per enabled channel (SMS first, then email). Rows are created in
// priority order so a consumer that only takes the first N gets the
// highest-priority contacts. Re-invocation is safe: targets that already
// have a row are skipped, never duplicated.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *db.Alert, contacts []*db.EmergencyContact) ([]*db.AlertNotification, error) {
	ordered := orderContacts(contacts)

	var created []*db.AlertNotification
	for _, contact := range ordered {
		for _, channel := range enabledChannels(contact) {
			contactID := contact.ID
			notif := &db.AlertNotification{
				ID:        uuid.New(),
				AlertID:   alert.ID,
				ContactID: &contactID,
				Channel:   channel,
				Status:    db.DeliveryPending,
			}

			inserted, err := d.repo.InsertNotification(ctx, notif)
			if err != nil {
				return created, fmt.Errorf("dispatch to contact %s via %s: %w", contact.ID, channel, err)
			}
			if !inserted {
				d.logger.Debug("notification already dispatched, skipping",
					zap.String("alert_id", alert.ID.String()),
					zap.String("contact_id", contact.ID.String()),
					zap.String("channel", string(channel)),
				)
				continue
			}

			metrics.RecordNotificationDispatched(string(channel))
			created = append(created, notif)
		}
	}

	d.logger.Info("alert fan-out complete",
		zap.String("alert_id", alert.ID.String()),
		zap.Int("contacts", len(ordered)),
		zap.Int("notifications_created", len(created)),
	)

	return created, nil
}

// DispatchOperator records a single operator notification for the alert: a
// row with no contact reference on the webhook channel. Idempotent like
// contact fan-out.
func (d *Dispatcher) DispatchOperator(ctx context.Context, alert *db.Alert) (*db.AlertNotification, error) {
	notif := &db.AlertNotification{
		ID:      uuid.New(),
		AlertID: alert.ID,
		Channel: db.ChannelWebhook,
		Status:  db.DeliveryPending,
	}

	inserted, err := d.repo.InsertNotification(ctx, notif)
	if err != nil {
		return nil, fmt.Errorf("dispatch operator notification: %w", err)
	}
	if !inserted {
		d.logger.Debug("operator notification already dispatched",
			zap.String("alert_id", alert.ID.String()),
		)
		return nil, nil
	}

	metrics.RecordNotificationDispatched(string(db.ChannelWebhook))
	return notif, nil
}

// UpdateDeliveryStatus is the callback for the external delivery path:
// records sent or failed for a notification. sent_at defaults to now for
// sent and is cleared for failed.
func (d *Dispatcher) UpdateDeliveryStatus(ctx context.Context, notificationID uuid.UUID, status db.DeliveryStatus, sentAt *time.Time) (*db.AlertNotification, error) {
	if status != db.DeliverySent && status != db.DeliveryFailed {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDeliveryStatus, status)
	}

	notif, err := d.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	if status == db.DeliverySent {
		if sentAt == nil {
			now := time.Now().UTC()
			sentAt = &now
		}
	} else {
		sentAt = nil
	}

	err = d.repo.UpdateNotificationDelivery(ctx, notificationID, status, notif.Attempt+1, nil, nil, sentAt)
	if err != nil {
		return nil, err
	}

	metrics.RecordNotificationDelivered(string(notif.Channel), string(status))

	notif.Status = status
	notif.Attempt++
	notif.SentAt = sentAt
	return notif, nil
}

// orderContacts sorts by priority ascending with ties broken by creation
// order. The sort is stable so equal priority and creation time keep their
// input order.
func orderContacts(contacts []*db.EmergencyContact) []*db.EmergencyContact {
	ordered := make([]*db.EmergencyContact, len(contacts))
	copy(ordered, contacts)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	return ordered
}

func enabledChannels(contact *db.EmergencyContact) []db.Channel {
	var channels []db.Channel
	if contact.NotifyBySMS {
		channels = append(channels, db.ChannelSMS)
	}
	if contact.NotifyByEmail {
		channels = append(channels, db.ChannelEmail)
	}
	return channels
}
