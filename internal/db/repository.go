package db

import (
	"go.uber.org/zap"
)

// Repository handles database operations for the alert domain. Methods are
// grouped per entity in alerts.go, contacts.go, notifications.go,
// profiles.go and roles.go.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}
