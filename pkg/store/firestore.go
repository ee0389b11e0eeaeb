package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

// FirestoreStore persists session states as one document per idea in a
// Firestore collection. The serialized blob is stored whole; a few fields
// are lifted alongside it for console inspection.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	mu         sync.RWMutex
	closed     bool
}

// FirestoreConfig holds Firestore connection configuration.
type FirestoreConfig struct {
	// ProjectID is the GCP project (required).
	ProjectID string
	// Collection is the collection name (default: "sessions").
	Collection string
	// CredentialsFile optionally points at a service account key.
	CredentialsFile string
}

// NewFirestoreStore creates a Firestore-backed store.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "sessions"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}

	return &FirestoreStore{client: client, collection: collection}, nil
}

type sessionDoc struct {
	IdeaID    string    `firestore:"idea_id"`
	UserID    string    `firestore:"user_id,omitempty"`
	Stage     string    `firestore:"stage"`
	Data      string    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// Save persists the serialized state document.
func (s *FirestoreStore) Save(ctx context.Context, st *state.State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	text, err := state.Serialize(st)
	if err != nil {
		return err
	}

	doc := sessionDoc{
		IdeaID:    st.IdeaID,
		UserID:    st.UserID,
		Stage:     string(st.CurrentStage),
		Data:      text,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.client.Collection(s.collection).Doc(st.IdeaID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore save: %w", err)
	}
	return nil
}

// Load retrieves the state for an idea id.
func (s *FirestoreStore) Load(ctx context.Context, ideaID string) (*state.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	snap, err := s.client.Collection(s.collection).Doc(ideaID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ideaID)
		}
		return nil, fmt.Errorf("firestore load: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore decode: %w", err)
	}
	return state.Deserialize(doc.Data)
}

// Delete removes the persisted document.
func (s *FirestoreStore) Delete(ctx context.Context, ideaID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	if _, err := s.client.Collection(s.collection).Doc(ideaID).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete: %w", err)
	}
	return nil
}

// List returns the idea ids with persisted documents.
func (s *FirestoreStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore list: %w", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

// Close releases the client.
func (s *FirestoreStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
