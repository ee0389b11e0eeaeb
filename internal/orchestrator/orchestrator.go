// Package orchestrator is the host surface of the workflow: it owns the
// session registry, serializes turns per idea id, and persists the state
// the engine returns.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/ideaforge-dev/ideaforge/internal/engine"
	"github.com/ideaforge-dev/ideaforge/pkg/monitor"
	"github.com/ideaforge-dev/ideaforge/pkg/state"
	"github.com/ideaforge-dev/ideaforge/pkg/store"
)

// session is one live registry entry. The semaphore is the per-session
// turn lock: a submit that cannot acquire it immediately is rejected
// rather than queued, so concurrent writers never interleave.
type session struct {
	mu         sync.RWMutex
	state      *state.State
	turnLock   *semaphore.Weighted
	lastActive time.Time
}

func (s *session) snapshot() *state.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *session) replace(st *state.State) {
	s.mu.Lock()
	s.state = st
	s.lastActive = time.Now().UTC()
	s.mu.Unlock()
}

// Config assembles an orchestrator.
type Config struct {
	// Engine executes turns. Required.
	Engine *engine.Engine
	// Store persists session state. Optional; sessions are memory-only
	// when absent.
	Store store.Store
	// Monitor receives per-session metrics. Optional.
	Monitor *monitor.Monitor
	// StageModels maps stage names to model identifiers. New sessions are
	// seeded with these selections.
	StageModels map[string]string
	// BrainstormMinProgress is the checklist progress required before
	// "Brainstorm Done" is accepted on sessions that carry a checklist
	// (default 50). Sessions without a checklist are never gated.
	BrainstormMinProgress int
	// SessionTTL is how long an idle session stays in the registry before
	// the janitor evicts it (default 24h). Persisted state survives
	// eviction.
	SessionTTL time.Duration
	// JanitorSchedule is the cron expression for the eviction sweep
	// (default every 10 minutes). Empty disables the janitor.
	JanitorSchedule string
}

// Orchestrator coordinates sessions across callers. It is safe for
// concurrent use; turns for distinct sessions proceed in parallel, turns
// for the same session are single-flight.
type Orchestrator struct {
	engine      *engine.Engine
	store       store.Store
	monitor     *monitor.Monitor
	stageModels map[state.Stage]string
	minProgress int
	ttl         time.Duration

	mu       sync.RWMutex
	sessions map[string]*session

	cron *cron.Cron
}

// New creates an orchestrator and starts its janitor when scheduled.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("orchestrator requires an engine")
	}

	o := &Orchestrator{
		engine:      cfg.Engine,
		store:       cfg.Store,
		monitor:     cfg.Monitor,
		minProgress: cfg.BrainstormMinProgress,
		ttl:         cfg.SessionTTL,
		sessions:    make(map[string]*session),
	}
	if len(cfg.StageModels) > 0 {
		o.stageModels = make(map[state.Stage]string, len(cfg.StageModels))
		for name, model := range cfg.StageModels {
			o.stageModels[state.Stage(name)] = model
		}
	}
	if o.minProgress <= 0 {
		o.minProgress = 50
	}
	if o.ttl <= 0 {
		o.ttl = 24 * time.Hour
	}
	if o.monitor == nil {
		// Share the engine's series so one snapshot covers node timings
		// and turn counts alike.
		o.monitor = cfg.Engine.Monitor()
	}

	schedule := cfg.JanitorSchedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	if schedule != "off" {
		o.cron = cron.New()
		if _, err := o.cron.AddFunc(schedule, o.evictIdle); err != nil {
			return nil, fmt.Errorf("janitor schedule %q: %w", schedule, err)
		}
		o.cron.Start()
	}
	return o, nil
}

// CreateSession initializes a fresh session for an idea id. Returns
// ErrSessionExists when the id is already registered or persisted.
func (o *Orchestrator) CreateSession(ctx context.Context, ideaID, userID string) (*state.State, error) {
	o.mu.Lock()
	if _, ok := o.sessions[ideaID]; ok {
		o.mu.Unlock()
		return nil, &state.RoutingError{IdeaID: ideaID, Err: state.ErrSessionExists}
	}
	o.mu.Unlock()

	if o.store != nil {
		if _, err := o.store.Load(ctx, ideaID); err == nil {
			return nil, &state.RoutingError{IdeaID: ideaID, Err: state.ErrSessionExists}
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("check session %s: %w", ideaID, err)
		}
	}

	st := state.New(ideaID, userID)
	if len(o.stageModels) > 0 {
		st.SelectedModels = make(map[state.Stage]string, len(o.stageModels))
		for stage, model := range o.stageModels {
			st.SelectedModels[stage] = model
		}
	}
	if err := state.Validate(st); err != nil {
		return nil, err
	}
	if o.store != nil {
		if err := o.store.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("save session %s: %w", ideaID, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.sessions[ideaID]; ok {
		return nil, &state.RoutingError{IdeaID: ideaID, Err: state.ErrSessionExists}
	}
	o.sessions[ideaID] = &session{
		state:      st,
		turnLock:   semaphore.NewWeighted(1),
		lastActive: time.Now().UTC(),
	}
	return st.Clone(), nil
}

// SubmitAction runs one turn: it appends the user message when present,
// sets the trigger, executes the engine, and persists the replacement
// state. A second submit for the same session while a turn is in flight
// fails fast with ErrSessionBusy.
func (o *Orchestrator) SubmitAction(ctx context.Context, ideaID string, trigger state.Trigger, message string) (*state.State, error) {
	sess, err := o.lookup(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	if !sess.turnLock.TryAcquire(1) {
		return nil, &state.RoutingError{IdeaID: ideaID, Err: state.ErrSessionBusy}
	}
	defer sess.turnLock.Release(1)

	st := sess.snapshot()
	if trigger == state.TriggerBrainstormDone && !state.BrainstormReady(st, o.minProgress) {
		return nil, &state.ValidationError{Issues: []string{
			fmt.Sprintf("brainstorm checklist progress %d is below the required %d", st.Checklist.Progress, o.minProgress),
		}}
	}
	if message != "" {
		st.AppendMessage(state.Message{
			Role:            state.RoleUser,
			Content:         message,
			StageAtCreation: st.CurrentStage,
		})
	}
	st.LastUserAction = trigger

	out, err := o.engine.Execute(ctx, st)
	if err != nil {
		return nil, err
	}

	// Only the engine's replacement state is committed. On engine
	// failure above, registry and store both keep the pre-turn state.
	sess.replace(out)
	if o.store != nil {
		if err := o.store.Save(ctx, out); err != nil {
			return nil, fmt.Errorf("save session %s: %w", ideaID, err)
		}
	}
	o.monitor.RecordMetric("turns_total", 1)
	return out.Clone(), nil
}

// RunMarketResearch runs the research side branch under the same
// single-flight lock as a turn.
func (o *Orchestrator) RunMarketResearch(ctx context.Context, ideaID string) (*state.State, error) {
	return o.sideBranch(ctx, ideaID, func(ctx context.Context, st *state.State) (*state.State, error) {
		return o.engine.RunMarketResearch(ctx, st)
	})
}

// NotifyPRD delivers the session's PRD draft to recipient under the same
// single-flight lock as a turn.
func (o *Orchestrator) NotifyPRD(ctx context.Context, ideaID, recipient string) (*state.State, error) {
	return o.sideBranch(ctx, ideaID, func(ctx context.Context, st *state.State) (*state.State, error) {
		return o.engine.SendPRDNotification(ctx, st, recipient)
	})
}

func (o *Orchestrator) sideBranch(ctx context.Context, ideaID string, run func(context.Context, *state.State) (*state.State, error)) (*state.State, error) {
	sess, err := o.lookup(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if !sess.turnLock.TryAcquire(1) {
		return nil, &state.RoutingError{IdeaID: ideaID, Err: state.ErrSessionBusy}
	}
	defer sess.turnLock.Release(1)

	out, err := run(ctx, sess.snapshot())
	if err != nil {
		return nil, err
	}
	sess.replace(out)
	if o.store != nil {
		if err := o.store.Save(ctx, out); err != nil {
			return nil, fmt.Errorf("save session %s: %w", ideaID, err)
		}
	}
	return out.Clone(), nil
}

// GetSession returns a copy of the current state for an idea id.
func (o *Orchestrator) GetSession(ctx context.Context, ideaID string) (*state.State, error) {
	sess, err := o.lookup(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	return sess.snapshot(), nil
}

// Validate checks a state without executing anything. A nil return means
// the state is accepted as engine input.
func (o *Orchestrator) Validate(s *state.State) error {
	return state.Validate(s)
}

// MetricsSnapshot returns the current operation statistics for a known
// session, or nil when no session exists for the idea id.
func (o *Orchestrator) MetricsSnapshot(ctx context.Context, ideaID string) map[string]monitor.Stats {
	if _, err := o.lookup(ctx, ideaID); err != nil {
		return nil
	}
	return o.monitor.GetSummary()
}

// ClearSession evicts a session from the registry. Persisted state is
// untouched; the session can be re-hydrated by a later submit.
func (o *Orchestrator) ClearSession(ideaID string) {
	o.mu.Lock()
	delete(o.sessions, ideaID)
	o.mu.Unlock()
}

// DeleteSession evicts a session and removes its persisted state.
func (o *Orchestrator) DeleteSession(ctx context.Context, ideaID string) error {
	o.ClearSession(ideaID)
	if o.store == nil {
		return nil
	}
	return o.store.Delete(ctx, ideaID)
}

// Close stops the janitor and flushes every live session to the store.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.cron != nil {
		o.cron.Stop()
	}
	if o.store == nil {
		return nil
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	var firstErr error
	for id, sess := range o.sessions {
		if err := o.store.Save(ctx, sess.snapshot()); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush session %s: %w", id, err)
		}
	}
	return firstErr
}

// lookup finds a live session, falling back to the store for sessions
// evicted from the registry.
func (o *Orchestrator) lookup(ctx context.Context, ideaID string) (*session, error) {
	o.mu.RLock()
	sess, ok := o.sessions[ideaID]
	o.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if o.store != nil {
		st, err := o.store.Load(ctx, ideaID)
		if err == nil {
			o.mu.Lock()
			defer o.mu.Unlock()
			if existing, ok := o.sessions[ideaID]; ok {
				return existing, nil
			}
			sess = &session{
				state:      st,
				turnLock:   semaphore.NewWeighted(1),
				lastActive: time.Now().UTC(),
			}
			o.sessions[ideaID] = sess
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load session %s: %w", ideaID, err)
		}
	}
	return nil, &state.RoutingError{IdeaID: ideaID, Err: state.ErrSessionNotFound}
}

// evictIdle drops sessions idle past the TTL. Sessions holding their turn
// lock are skipped; the next sweep gets them.
func (o *Orchestrator) evictIdle() {
	cutoff := time.Now().UTC().Add(-o.ttl)

	o.mu.Lock()
	defer o.mu.Unlock()
	for id, sess := range o.sessions {
		sess.mu.RLock()
		idle := sess.lastActive.Before(cutoff)
		sess.mu.RUnlock()
		if !idle {
			continue
		}
		if !sess.turnLock.TryAcquire(1) {
			continue
		}
		sess.turnLock.Release(1)
		delete(o.sessions, id)
		log.Printf("[orchestrator] evicted idle session %s", id)
	}
}
