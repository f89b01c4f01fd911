package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const notificationColumns = `
	id, alert_id, contact_id, notification_type, status, attempt,
	error_message, next_retry_at, sent_at, created_at, updated_at
`

func scanNotification(row pgx.Row) (*AlertNotification, error) {
	var n AlertNotification
	err := row.Scan(
		&n.ID,
		&n.AlertID,
		&n.ContactID,
		&n.Channel,
		&n.Status,
		&n.Attempt,
		&n.ErrorMessage,
		&n.NextRetryAt,
		&n.SentAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// InsertNotification creates a fan-out row. A unique index (NULLS NOT
// DISTINCT) on (alert_id, contact_id, notification_type) makes dispatch
// idempotent: when a row for the same target already exists the insert is
// skipped and InsertNotification returns false with no error.
func (r *Repository) InsertNotification(ctx context.Context, notif *AlertNotification) (bool, error) {
	query := `
		INSERT INTO alert_notifications (
			id, alert_id, contact_id, notification_type, status, attempt, next_retry_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		ON CONFLICT (alert_id, contact_id, notification_type) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		notif.ID,
		notif.AlertID,
		notif.ContactID,
		notif.Channel,
		notif.Status,
		notif.Attempt,
		notif.NextRetryAt,
	).Scan(&notif.CreatedAt, &notif.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: a pending or processed row already exists for this target.
		return false, nil
	}
	if err != nil {
		r.logger.Error("failed to insert notification",
			zap.Error(err),
			zap.String("alert_id", notif.AlertID.String()),
			zap.String("channel", string(notif.Channel)),
		)
		return false, fmt.Errorf("insert notification: %w", err)
	}

	return true, nil
}

// GetNotification retrieves a notification by ID.
func (r *Repository) GetNotification(ctx context.Context, id uuid.UUID) (*AlertNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM alert_notifications WHERE id = $1`

	notif, err := scanNotification(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return notif, nil
}

// ListNotificationsByAlert returns the fan-out history for an alert in
// creation order, which follows contact priority at dispatch time.
func (r *Repository) ListNotificationsByAlert(ctx context.Context, alertID uuid.UUID) ([]*AlertNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM alert_notifications
		WHERE alert_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Pool().Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*AlertNotification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notif)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// ListPendingNotifications exposes the delivery queue as a pull interface:
// pending rows whose retry time has passed, oldest first.
func (r *Repository) ListPendingNotifications(ctx context.Context, limit int) ([]*AlertNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM alert_notifications
		WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*AlertNotification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, notif)
	}

	return notifications, nil
}

// GetPendingDeliveries fetches pending notifications joined with the alert,
// contact and owning profile the worker needs to compose messages. The
// contact join is LEFT so operator rows (contact_id NULL) are included.
func (r *Repository) GetPendingDeliveries(ctx context.Context, limit int) ([]*PendingDelivery, error) {
	query := `
		SELECT
			n.id, n.alert_id, n.contact_id, n.notification_type, n.status,
			n.attempt, n.error_message, n.next_retry_at, n.sent_at,
			n.created_at, n.updated_at,
			a.id, a.user_id, a.status, a.latitude, a.longitude, a.address,
			a.notes, a.trigger_method, a.resolved_at, a.created_at, a.updated_at,
			c.contact_name, c.contact_phone, c.contact_email,
			p.full_name, p.phone_number
		FROM alert_notifications n
		JOIN alerts a ON a.id = n.alert_id
		LEFT JOIN emergency_contacts c ON c.id = n.contact_id
		JOIN profiles p ON p.id = a.user_id
		WHERE n.status = 'pending' AND (n.next_retry_at IS NULL OR n.next_retry_at <= NOW())
		ORDER BY n.created_at ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*PendingDelivery
	for rows.Next() {
		var d PendingDelivery
		err := rows.Scan(
			&d.Notification.ID,
			&d.Notification.AlertID,
			&d.Notification.ContactID,
			&d.Notification.Channel,
			&d.Notification.Status,
			&d.Notification.Attempt,
			&d.Notification.ErrorMessage,
			&d.Notification.NextRetryAt,
			&d.Notification.SentAt,
			&d.Notification.CreatedAt,
			&d.Notification.UpdatedAt,
			&d.Alert.ID,
			&d.Alert.UserID,
			&d.Alert.Status,
			&d.Alert.Latitude,
			&d.Alert.Longitude,
			&d.Alert.Address,
			&d.Alert.Notes,
			&d.Alert.TriggerMethod,
			&d.Alert.ResolvedAt,
			&d.Alert.CreatedAt,
			&d.Alert.UpdatedAt,
			&d.ContactName,
			&d.ContactPhone,
			&d.ContactEmail,
			&d.OwnerName,
			&d.OwnerPhone,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pending delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return deliveries, nil
}

// UpdateNotificationDelivery records a delivery attempt outcome. sent_at is
// only ever set alongside the sent status.
func (r *Repository) UpdateNotificationDelivery(
	ctx context.Context,
	id uuid.UUID,
	status DeliveryStatus,
	attempt int,
	errorMsg *string,
	nextRetryAt *time.Time,
	sentAt *time.Time,
) error {
	query := `
		UPDATE alert_notifications
		SET status = $1, attempt = $2, error_message = $3,
		    next_retry_at = $4, sent_at = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.db.Pool().Exec(ctx, query, status, attempt, errorMsg, nextRetryAt, sentAt, id)
	if err != nil {
		r.logger.Error("failed to update notification delivery",
			zap.Error(err),
			zap.String("notification_id", id.String()),
		)
		return fmt.Errorf("update notification delivery: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	return nil
}
