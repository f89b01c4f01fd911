package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const contactColumns = `
	id, user_id, contact_name, contact_phone, contact_email,
	notify_by_sms, notify_by_email, priority, created_at, updated_at
`

func scanContact(row pgx.Row) (*EmergencyContact, error) {
	var c EmergencyContact
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.ContactName,
		&c.ContactPhone,
		&c.ContactEmail,
		&c.NotifyBySMS,
		&c.NotifyByEmail,
		&c.Priority,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContact inserts a new emergency contact.
func (r *Repository) CreateContact(ctx context.Context, contact *EmergencyContact) error {
	query := `
		INSERT INTO emergency_contacts (
			id, user_id, contact_name, contact_phone, contact_email,
			notify_by_sms, notify_by_email, priority
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		contact.ID,
		contact.UserID,
		contact.ContactName,
		contact.ContactPhone,
		contact.ContactEmail,
		contact.NotifyBySMS,
		contact.NotifyByEmail,
		contact.Priority,
	).Scan(&contact.CreatedAt, &contact.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create contact",
			zap.Error(err),
			zap.String("contact_id", contact.ID.String()),
		)
		return fmt.Errorf("insert contact: %w", err)
	}

	r.logger.Info("emergency contact created",
		zap.String("contact_id", contact.ID.String()),
		zap.String("user_id", contact.UserID.String()),
		zap.Int("priority", contact.Priority),
	)

	return nil
}

// GetContact retrieves a contact by ID.
func (r *Repository) GetContact(ctx context.Context, id uuid.UUID) (*EmergencyContact, error) {
	query := `SELECT ` + contactColumns + ` FROM emergency_contacts WHERE id = $1`

	contact, err := scanContact(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}

	return contact, nil
}

// ListContactsByUser returns a user's contacts in fan-out order: priority
// ascending, ties broken by creation order.
func (r *Repository) ListContactsByUser(ctx context.Context, userID uuid.UUID) ([]*EmergencyContact, error) {
	query := `SELECT ` + contactColumns + ` FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY priority ASC, created_at ASC`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*EmergencyContact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return contacts, nil
}

// UpdateContact updates a contact owned by userID. Ownership is part of the
// WHERE clause so a user cannot modify another profile's contacts.
func (r *Repository) UpdateContact(ctx context.Context, userID uuid.UUID, contact *EmergencyContact) error {
	query := `
		UPDATE emergency_contacts
		SET contact_name = $1, contact_phone = $2, contact_email = $3,
		    notify_by_sms = $4, notify_by_email = $5, priority = $6,
		    updated_at = NOW()
		WHERE id = $7 AND user_id = $8
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		contact.ContactName,
		contact.ContactPhone,
		contact.ContactEmail,
		contact.NotifyBySMS,
		contact.NotifyByEmail,
		contact.Priority,
		contact.ID,
		userID,
	).Scan(&contact.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("contact %s: %w", contact.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}

	return nil
}

// DeleteContact removes a contact owned by userID. Notification history for
// past alerts is preserved; alert_notifications.contact_id is set NULL by
// the foreign key.
func (r *Repository) DeleteContact(ctx context.Context, userID, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx,
		`DELETE FROM emergency_contacts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}

	r.logger.Info("emergency contact deleted",
		zap.String("contact_id", id.String()),
		zap.String("user_id", userID.String()),
	)

	return nil
}
