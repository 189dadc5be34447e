package storage

import (
	"context"

	"itp/internal/domain"
)

// Repository persists the session state of one workspace.
type Repository interface {
	// Load returns nil, nil when no state has been committed yet.
	Load(ctx context.Context) (*domain.State, error)
	// Save replaces the stored state atomically.
	Save(ctx context.Context, state *domain.State) error
	// Clear removes the stored state.
	Clear(ctx context.Context) error
	Close() error
}
