// Package store persists serialized session states keyed by idea id.
// The core does not define a storage schema beyond one serialized blob per
// idea; backends are free to normalize further.
package store

import (
	"context"
	"errors"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

// Common errors for storage operations.
var (
	// ErrNotFound is returned when no state exists for an idea id.
	ErrNotFound = errors.New("session state not found")
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store abstracts durable session persistence. Implementations must be
// safe for concurrent use.
type Store interface {
	// Save persists the full serialized state for its idea id.
	Save(ctx context.Context, s *state.State) error

	// Load retrieves the state for an idea id.
	// Returns ErrNotFound when the session has never been saved.
	Load(ctx context.Context, ideaID string) (*state.State, error)

	// Delete removes the persisted state. Deleting an absent id is not an
	// error.
	Delete(ctx context.Context, ideaID string) error

	// List returns the idea ids with persisted state.
	List(ctx context.Context) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}
