// Package audit persists audit events.
package audit

import (
	"context"

	"drinkmailer/internal/adapters/storage"
	domain "drinkmailer/internal/domain/audit"
)

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event domain.Event) error

	// List returns events matching filter, newest first.
	// PRE: filter has been validated
	List(ctx context.Context, filter domain.Filter) ([]domain.Event, error)

	// GetByID retrieves a specific audit event.
	// POST: Returns ErrNotFound when absent
	GetByID(ctx context.Context, id string) (domain.Event, error)
}

var _ Store = (*SQLiteStore)(nil)

// SQLDB is the database handle the store needs.
type SQLDB interface {
	storage.SQLDB
}
