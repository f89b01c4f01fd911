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

const alertColumns = `
	id, user_id, status, latitude, longitude, address, notes,
	trigger_method, resolved_at, created_at, updated_at
`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Status,
		&a.Latitude,
		&a.Longitude,
		&a.Address,
		&a.Notes,
		&a.TriggerMethod,
		&a.ResolvedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlert inserts a new alert. The alerts table carries a partial unique
// index on (user_id) WHERE status = 'active', so a concurrent insert for a
// user who already has an active alert fails with a unique violation.
func (r *Repository) CreateAlert(ctx context.Context, alert *Alert) error {
	query := `
		INSERT INTO alerts (
			id, user_id, status, latitude, longitude, address, notes, trigger_method
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		alert.ID,
		alert.UserID,
		alert.Status,
		alert.Latitude,
		alert.Longitude,
		alert.Address,
		alert.Notes,
		alert.TriggerMethod,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)

	if err != nil {
		if !IsUniqueViolation(err) {
			r.logger.Error("failed to create alert",
				zap.Error(err),
				zap.String("alert_id", alert.ID.String()),
			)
		}
		return fmt.Errorf("insert alert: %w", err)
	}

	r.logger.Info("alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.String("user_id", alert.UserID.String()),
		zap.String("trigger_method", string(alert.TriggerMethod)),
	)

	return nil
}

// GetAlert retrieves an alert by ID.
func (r *Repository) GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	alert, err := scanAlert(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query alert: %w", err)
	}

	return alert, nil
}

// GetActiveAlertByUser returns the user's active alert, or ErrNotFound when
// none exists. The partial unique index guarantees at most one row matches.
func (r *Repository) GetActiveAlertByUser(ctx context.Context, userID uuid.UUID) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = $1 AND status = 'active'`

	alert, err := scanAlert(r.db.Pool().QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("active alert for user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query active alert: %w", err)
	}

	return alert, nil
}

// TransitionAlert performs a compare-and-swap status change: the update only
// applies while the alert is still in the expected source state, so two
// concurrent transitions cannot both win. Returns ErrNotFound when the row
// was not in the expected state (the caller distinguishes missing vs raced).
func (r *Repository) TransitionAlert(
	ctx context.Context,
	id uuid.UUID,
	from, to AlertStatus,
	resolvedAt *time.Time,
) (*Alert, error) {
	query := `
		UPDATE alerts
		SET status = $1, resolved_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING ` + alertColumns

	alert, err := scanAlert(r.db.Pool().QueryRow(ctx, query, to, resolvedAt, id, from))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("alert %s not in state %s: %w", id, from, ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to transition alert",
			zap.Error(err),
			zap.String("alert_id", id.String()),
			zap.String("to", string(to)),
		)
		return nil, fmt.Errorf("transition alert: %w", err)
	}

	r.logger.Info("alert transitioned",
		zap.String("alert_id", id.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	return alert, nil
}

// ListAlerts retrieves alerts with an optional status filter, newest first.
func (r *Repository) ListAlerts(ctx context.Context, status *AlertStatus, limit, offset int) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	args := []interface{}{}

	if status != nil {
		query += ` WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, *status, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return alerts, nil
}

// ListAlertsByUser retrieves a user's alert history, newest first.
func (r *Repository) ListAlertsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query user alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return alerts, nil
}

// GetAlertStats returns the admin dashboard counters.
func (r *Repository) GetAlertStats(ctx context.Context) (*AlertStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'resolved'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE status = 'escalated'),
			(SELECT COUNT(*) FROM profiles)
		FROM alerts
	`

	var stats AlertStats
	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&stats.TotalAlerts,
		&stats.ActiveAlerts,
		&stats.ResolvedAlerts,
		&stats.CancelledAlerts,
		&stats.EscalatedAlerts,
		&stats.TotalUsers,
	)
	if err != nil {
		return nil, fmt.Errorf("query alert stats: %w", err)
	}

	return &stats, nil
}
