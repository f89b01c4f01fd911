package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// GetProfile retrieves a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `
		SELECT id, full_name, phone_number, avatar_url, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	var p Profile
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.FullName,
		&p.PhoneNumber,
		&p.AvatarURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	return &p, nil
}

// UpsertProfile creates the profile row on first sight of an authenticated
// identity and updates the editable fields afterwards.
func (r *Repository) UpsertProfile(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO profiles (id, full_name, phone_number, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    phone_number = EXCLUDED.phone_number,
		    avatar_url = EXCLUDED.avatar_url,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		profile.ID,
		profile.FullName,
		profile.PhoneNumber,
		profile.AvatarURL,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to upsert profile",
			zap.Error(err),
			zap.String("profile_id", profile.ID.String()),
		)
		return fmt.Errorf("upsert profile: %w", err)
	}

	return nil
}
