package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

// safeIDPattern defines the characters allowed in an idea id used as a file
// name. Anything else is rejected to rule out path traversal.
var safeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("idea id cannot be empty")
	}
	if len(id) > 256 {
		return fmt.Errorf("idea id too long (max 256 characters)")
	}
	if !safeIDPattern.MatchString(id) {
		return fmt.Errorf("idea id contains invalid characters: only alphanumeric, hyphens, and underscores allowed")
	}
	return nil
}

// FileStore persists one JSON file per idea under a base directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Save persists the state to <baseDir>/<ideaID>.json.
func (s *FileStore) Save(ctx context.Context, st *state.State) error {
	if err := validateID(st.IdeaID); err != nil {
		return fmt.Errorf("invalid idea id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	text, err := state.Serialize(st)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path(st.IdeaID), []byte(text), 0600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// Load retrieves the state for an idea id.
func (s *FileStore) Load(ctx context.Context, ideaID string) (*state.State, error) {
	if err := validateID(ideaID); err != nil {
		return nil, fmt.Errorf("invalid idea id: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	data, err := os.ReadFile(s.path(ideaID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ideaID)
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return state.Deserialize(string(data))
}

// Delete removes the persisted state file.
func (s *FileStore) Delete(ctx context.Context, ideaID string) error {
	if err := validateID(ideaID); err != nil {
		return fmt.Errorf("invalid idea id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := os.Remove(s.path(ideaID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

// List returns the idea ids with persisted state.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return ids, nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileStore) path(ideaID string) string {
	return filepath.Join(s.baseDir, ideaID+".json")
}
