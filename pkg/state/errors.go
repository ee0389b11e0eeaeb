package state

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for session handling.
var (
	// ErrSessionNotFound is returned when no session exists for an idea id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionBusy is returned when a turn is already in flight for the
	// same idea id.
	ErrSessionBusy = errors.New("session is already processing a turn")
	// ErrSessionExists is returned when creating a session that already exists.
	ErrSessionExists = errors.New("session already exists")
)

// ValidationError reports every structural violation found in a state.
// It is raised to the caller before any node runs; the state is untouched.
type ValidationError struct {
	Issues []string
}

// Error returns the full issue list in one line.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid session state: %s", strings.Join(e.Issues, "; "))
}

// RoutingError reports host-layer misuse, such as submitting an action for
// a session that does not exist. Unrecognized triggers do not produce a
// RoutingError; they default to a no-op turn.
type RoutingError struct {
	IdeaID string
	Err    error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed for session %q: %v", e.IdeaID, e.Err)
}

// Unwrap returns the underlying cause for errors.Is compatibility.
func (e *RoutingError) Unwrap() error {
	return e.Err
}
