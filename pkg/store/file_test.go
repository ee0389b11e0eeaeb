package store

import (
	"context"
	"errors"
	"testing"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFileStoreSaveLoad(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	st := state.New("idea-1", "user-9")
	st.AppendMessage(state.Message{Role: state.RoleUser, Content: "hello", StageAtCreation: state.StageBrainstorm})
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "idea-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.IdeaID != "idea-1" || got.UserID != "user-9" {
		t.Errorf("loaded %q/%q, want idea-1/user-9", got.IdeaID, got.UserID)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("messages not round-tripped: %v", got.Messages)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	s := newFileStore(t)
	if _, err := s.Load(context.Background(), "never-saved"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreRejectsUnsafeIDs(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	for _, id := range []string{"", "../escape", "a/b", "id with spaces"} {
		st := state.New(id, "")
		if err := s.Save(ctx, st); err == nil {
			t.Errorf("Save(%q) accepted unsafe idea id", id)
		}
		if _, err := s.Load(ctx, id); err == nil {
			t.Errorf("Load(%q) accepted unsafe idea id", id)
		}
	}
}

func TestFileStoreDeleteAndList(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	for _, id := range []string{"idea-a", "idea-b"} {
		if err := s.Save(ctx, state.New(id, "")); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("List() = %v, want 2 ids", ids)
	}

	if err := s.Delete(ctx, "idea-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// Deleting an absent id is not an error.
	if err := s.Delete(ctx, "idea-a"); err != nil {
		t.Fatalf("Delete(absent) error = %v", err)
	}

	ids, _ = s.List(ctx)
	if len(ids) != 1 || ids[0] != "idea-b" {
		t.Errorf("List() after delete = %v, want [idea-b]", ids)
	}
}

func TestFileStoreClosed(t *testing.T) {
	s := newFileStore(t)
	_ = s.Close()
	if err := s.Save(context.Background(), state.New("idea-1", "")); !errors.Is(err, ErrClosed) {
		t.Errorf("Save() after close error = %v, want ErrClosed", err)
	}
}
