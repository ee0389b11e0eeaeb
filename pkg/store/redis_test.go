package store

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

func setupMiniredis(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "test:", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStoreSaveLoad(t *testing.T) {
	s := setupMiniredis(t)
	ctx := context.Background()

	st := state.New("idea-1", "user-2")
	st.CurrentStage = state.StageSummary
	st.AppendMessage(state.Message{Role: state.RoleAssistant, Content: "the summary", StageAtCreation: state.StageSummary})
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "idea-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.CurrentStage != state.StageSummary {
		t.Errorf("stage = %q, want summary", got.CurrentStage)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "the summary" {
		t.Errorf("messages not round-tripped: %v", got.Messages)
	}
}

func TestRedisStoreLoadMissing(t *testing.T) {
	s := setupMiniredis(t)
	if _, err := s.Load(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreListAndDelete(t *testing.T) {
	s := setupMiniredis(t)
	ctx := context.Background()

	for _, id := range []string{"idea-a", "idea-b", "idea-c"} {
		if err := s.Save(ctx, state.New(id, "")); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 3 || ids[0] != "idea-a" {
		t.Fatalf("List() = %v", ids)
	}

	if err := s.Delete(ctx, "idea-b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ids, _ = s.List(ctx)
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "idea-a" || ids[1] != "idea-c" {
		t.Errorf("List() after delete = %v", ids)
	}
	if _, err := s.Load(ctx, "idea-b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestRedisStoreClosed(t *testing.T) {
	s := setupMiniredis(t)
	_ = s.Close()
	if err := s.Save(context.Background(), state.New("idea-1", "")); !errors.Is(err, ErrClosed) {
		t.Errorf("Save() after close error = %v, want ErrClosed", err)
	}
}
