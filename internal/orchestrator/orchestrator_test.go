package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ideaforge-dev/ideaforge/internal/engine"
	"github.com/ideaforge-dev/ideaforge/pkg/provider"
	"github.com/ideaforge-dev/ideaforge/pkg/state"
	"github.com/ideaforge-dev/ideaforge/pkg/store"
)

// blockingProvider parks every invocation until released, to hold a turn
// in flight from the test.
type blockingProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Name() string { return "mock" }

func (p *blockingProvider) Invoke(ctx context.Context, req provider.Request) (*provider.Response, error) {
	p.entered <- struct{}{}
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &provider.Response{Content: "done"}, nil
}

func newTestOrchestrator(t *testing.T, p provider.Provider) *Orchestrator {
	t.Helper()
	registry := provider.NewRegistry("mock", nil)
	registry.Register(p)
	e := engine.New(engine.Config{Registry: registry, DefaultModel: "mock/default"})

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	o, err := New(Config{Engine: e, Store: fs, JanitorSchedule: "off"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { o.Close(context.Background()) })
	return o
}

func TestCreateSession(t *testing.T) {
	o := newTestOrchestrator(t, provider.NewMockProvider())
	ctx := context.Background()

	st, err := o.CreateSession(ctx, "idea-1", "user-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if st.CurrentStage != state.StageBrainstorm {
		t.Errorf("fresh stage = %q, want brainstorm", st.CurrentStage)
	}
	if st.IsProcessing {
		t.Error("fresh session marked processing")
	}

	_, err = o.CreateSession(ctx, "idea-1", "user-1")
	if !errors.Is(err, state.ErrSessionExists) {
		t.Fatalf("duplicate create error = %v, want ErrSessionExists", err)
	}
	var rerr *state.RoutingError
	if !errors.As(err, &rerr) || rerr.IdeaID != "idea-1" {
		t.Errorf("duplicate create error = %v, want RoutingError for idea-1", err)
	}
}

func TestCreateSessionSeedsStageModels(t *testing.T) {
	registry := provider.NewRegistry("mock", nil)
	registry.Register(provider.NewMockProvider())
	e := engine.New(engine.Config{Registry: registry, DefaultModel: "mock/default"})

	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	t.Cleanup(func() { fs.Close() })

	o, err := New(Config{
		Engine:          e,
		Store:           fs,
		JanitorSchedule: "off",
		StageModels: map[string]string{
			"prd":     "bedrock/claude",
			"summary": "mock/summarizer",
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { o.Close(context.Background()) })

	st, err := o.CreateSession(context.Background(), "idea-1", "user-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if got := st.SelectedModels[state.StagePRD]; got != "bedrock/claude" {
		t.Errorf("prd model = %q, want bedrock/claude", got)
	}
	if got := st.SelectedModels[state.StageSummary]; got != "mock/summarizer" {
		t.Errorf("summary model = %q, want mock/summarizer", got)
	}
}

func TestBrainstormDoneGatedOnChecklist(t *testing.T) {
	mock := provider.NewMockProvider()
	o := newTestOrchestrator(t, mock)
	ctx := context.Background()

	if _, err := o.CreateSession(ctx, "idea-1", "user-1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	o.mu.RLock()
	sess := o.sessions["idea-1"]
	o.mu.RUnlock()
	sess.mu.Lock()
	sess.state.Checklist = &state.Checklist{Progress: 20}
	sess.mu.Unlock()

	_, err := o.SubmitAction(ctx, "idea-1", state.TriggerBrainstormDone, "")
	var verr *state.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("early completion error = %v, want *ValidationError", err)
	}

	sess.mu.Lock()
	sess.state.Checklist.Progress = 80
	sess.mu.Unlock()

	out, err := o.SubmitAction(ctx, "idea-1", state.TriggerBrainstormDone, "")
	if err != nil {
		t.Fatalf("SubmitAction() after progress error = %v", err)
	}
	if out.CurrentStage != state.StageSummary {
		t.Errorf("stage = %q, want summary", out.CurrentStage)
	}

	// Sessions without a checklist are never gated.
	if _, err := o.CreateSession(ctx, "idea-2", "user-1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := o.SubmitAction(ctx, "idea-2", state.TriggerBrainstormDone, ""); err != nil {
		t.Errorf("ungated completion error = %v", err)
	}
}

func TestSubmitActionUnknownSession(t *testing.T) {
	o := newTestOrchestrator(t, provider.NewMockProvider())

	_, err := o.SubmitAction(context.Background(), "ghost", state.TriggerChat, "hello")
	var rerr *state.RoutingError
	if !errors.As(err, &rerr) {
		t.Fatalf("error = %v, want *RoutingError", err)
	}
	if !errors.Is(err, state.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound cause", err)
	}
}

func TestSubmitActionRunsTurnAndPersists(t *testing.T) {
	mock := provider.NewMockProvider()
	mock.Responses = []*provider.Response{{Content: "interesting, tell me more"}}
	o := newTestOrchestrator(t, mock)
	ctx := context.Background()

	if _, err := o.CreateSession(ctx, "idea-1", "user-1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	out, err := o.SubmitAction(ctx, "idea-1", state.TriggerChat, "an app for plant care")
	if err != nil {
		t.Fatalf("SubmitAction() error = %v", err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("message count = %d, want user turn plus reply", len(out.Messages))
	}
	if out.Messages[1].Role != state.RoleAssistant {
		t.Errorf("second message role = %q, want assistant", out.Messages[1].Role)
	}

	// The committed state must match what a cold lookup returns.
	o.ClearSession("idea-1")
	got, err := o.GetSession(ctx, "idea-1")
	if err != nil {
		t.Fatalf("GetSession() after eviction error = %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("persisted message count = %d, want 2", len(got.Messages))
	}
}

func TestSubmitActionSingleFlight(t *testing.T) {
	p := &blockingProvider{entered: make(chan struct{}), release: make(chan struct{})}
	o := newTestOrchestrator(t, p)
	ctx := context.Background()

	if _, err := o.CreateSession(ctx, "idea-1", "user-1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := o.SubmitAction(ctx, "idea-1", state.TriggerChat, "first"); err != nil {
			t.Errorf("in-flight turn failed: %v", err)
		}
	}()
	<-p.entered

	// Second submit for the same session must fail fast while the first
	// holds the lock.
	_, err := o.SubmitAction(ctx, "idea-1", state.TriggerChat, "second")
	if !errors.Is(err, state.ErrSessionBusy) {
		t.Errorf("concurrent submit error = %v, want ErrSessionBusy", err)
	}

	close(p.release)
	wg.Wait()

	// Lock released: the next submit proceeds.
	p.release = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.SubmitAction(ctx, "idea-1", state.TriggerChat, "third"); err != nil {
			t.Errorf("post-release turn failed: %v", err)
		}
	}()
	<-p.entered
	close(p.release)
	<-done
}

func TestDistinctSessionsRunInParallel(t *testing.T) {
	p := &blockingProvider{entered: make(chan struct{}, 2), release: make(chan struct{})}
	o := newTestOrchestrator(t, p)
	ctx := context.Background()

	for _, id := range []string{"idea-a", "idea-b"} {
		if _, err := o.CreateSession(ctx, id, "user-1"); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", id, err)
		}
	}

	var wg sync.WaitGroup
	for _, id := range []string{"idea-a", "idea-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := o.SubmitAction(ctx, id, state.TriggerChat, "go"); err != nil {
				t.Errorf("SubmitAction(%s) error = %v", id, err)
			}
		}(id)
	}

	// Both turns reach the provider concurrently.
	<-p.entered
	<-p.entered
	close(p.release)
	wg.Wait()
}

func TestClearSessionKeepsPersistedState(t *testing.T) {
	o := newTestOrchestrator(t, provider.NewMockProvider())
	ctx := context.Background()

	if _, err := o.CreateSession(ctx, "idea-1", "user-1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	o.ClearSession("idea-1")

	// Re-hydrates from the store rather than ErrSessionNotFound.
	if _, err := o.GetSession(ctx, "idea-1"); err != nil {
		t.Fatalf("GetSession() after clear error = %v", err)
	}

	if err := o.DeleteSession(ctx, "idea-1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := o.GetSession(ctx, "idea-1"); !errors.Is(err, state.ErrSessionNotFound) {
		t.Errorf("GetSession() after delete error = %v, want ErrSessionNotFound", err)
	}
}

func TestEvictIdleSweep(t *testing.T) {
	o := newTestOrchestrator(t, provider.NewMockProvider())
	ctx := context.Background()

	if _, err := o.CreateSession(ctx, "idea-1", "user-1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// Nothing is idle yet.
	o.evictIdle()
	o.mu.RLock()
	n := len(o.sessions)
	o.mu.RUnlock()
	if n != 1 {
		t.Fatalf("session count after fresh sweep = %d, want 1", n)
	}

	// A zero-or-negative TTL makes everything idle immediately.
	o.ttl = -time.Second
	o.evictIdle()
	o.mu.RLock()
	n = len(o.sessions)
	o.mu.RUnlock()
	if n != 0 {
		t.Fatalf("session count after idle sweep = %d, want 0", n)
	}

	// Persisted state survives eviction.
	if _, err := o.GetSession(ctx, "idea-1"); err != nil {
		t.Errorf("GetSession() after eviction error = %v", err)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	mock := provider.NewMockProvider()
	o := newTestOrchestrator(t, mock)
	ctx := context.Background()

	if _, err := o.CreateSession(ctx, "idea-1", "user-1"); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := o.SubmitAction(ctx, "idea-1", state.TriggerChat, "hello"); err != nil {
		t.Fatalf("SubmitAction() error = %v", err)
	}

	stats := o.MetricsSnapshot(ctx, "idea-1")
	if stats == nil {
		t.Fatal("snapshot for known session is nil")
	}
	if stats["turns_total"].Count != 1 {
		t.Errorf("turns_total count = %d, want 1", stats["turns_total"].Count)
	}
	// Node timings share the same snapshot.
	if stats["process_user_turn_duration_ms"].Count != 1 {
		t.Errorf("process_user_turn samples = %d, want 1", stats["process_user_turn_duration_ms"].Count)
	}

	if got := o.MetricsSnapshot(ctx, "ghost"); got != nil {
		t.Errorf("snapshot for unknown session = %v, want nil", got)
	}
}
