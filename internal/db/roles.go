package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ListRoles returns every role held by a profile. Zero rows is a valid
// result: a profile with no grants is an ordinary user.
func (r *Repository) ListRoles(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	query := `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return roles, nil
}

// HasAnyRole reports whether the profile holds at least one of the given
// roles. Roles are rows, not a single field, so the check is set membership.
func (r *Repository) HasAnyRole(ctx context.Context, userID uuid.UUID, roles ...Role) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	query := `SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = ANY($2))`

	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, userID, names).Scan(&exists); err != nil {
		return false, fmt.Errorf("query role membership: %w", err)
	}

	return exists, nil
}

// GrantRole assigns a role to a profile. Granting an already-held role is a
// no-op.
func (r *Repository) GrantRole(ctx context.Context, userID uuid.UUID, role Role) error {
	query := `
		INSERT INTO user_roles (id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role) DO NOTHING
	`

	if _, err := r.db.Pool().Exec(ctx, query, uuid.New(), userID, role); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}

	return nil
}
