// Package engine implements the session workflow state machine: the node
// graph that mutates session state and the router that selects the next
// node from the last user action.
//
// Execute is total and side-effect-isolated per call except for the
// injected capabilities (model invocation, notification). The input state
// is never mutated; callers persist only the returned replacement, so a
// cancelled turn leaves durable state exactly as it was.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ideaforge-dev/ideaforge/internal/observability"
	"github.com/ideaforge-dev/ideaforge/pkg/monitor"
	"github.com/ideaforge-dev/ideaforge/pkg/notify"
	"github.com/ideaforge-dev/ideaforge/pkg/provider"
	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

// Node names recorded as snapshot provenance.
const (
	NodeProcessUserTurn  = "process_user_turn"
	NodeGenerateSummary  = "generate_summary"
	NodeGeneratePRDDraft = "generate_prd_draft"
	NodeMarketResearch   = "market_research"
	NodeNotify           = "notify"
	NodeTerminal         = "terminal"
)

// Config assembles an engine.
type Config struct {
	// Registry resolves model identifiers to providers. Required.
	Registry *provider.Registry
	// Notifier delivers outbound notifications. Optional; the notify node
	// fails cleanly when absent.
	Notifier notify.Notifier
	// History receives one snapshot per executed node. Optional.
	History *state.History
	// Monitor receives node timings. Optional.
	Monitor *monitor.Monitor
	// CallTimeout bounds each capability call (default 60s). A timeout is
	// an ordinary node failure, never a partial commit.
	CallTimeout time.Duration
	// MaxContextMessages bounds the chat context window (default 20).
	MaxContextMessages int
	// MaxTokens caps each completion. Zero leaves the provider default.
	MaxTokens int
	// Temperature applies to every model call. Zero leaves the provider
	// default.
	Temperature float32
	// DefaultModel handles stages with no selected model.
	DefaultModel string
}

// Engine executes one turn of the workflow per call.
type Engine struct {
	registry     *provider.Registry
	notifier     notify.Notifier
	history      *state.History
	monitor      *monitor.Monitor
	callTimeout  time.Duration
	maxContext   int
	maxTokens    int
	temperature  float32
	defaultModel string
}

// New creates an engine from config, applying defaults.
func New(cfg Config) *Engine {
	e := &Engine{
		registry:     cfg.Registry,
		notifier:     cfg.Notifier,
		history:      cfg.History,
		monitor:      cfg.Monitor,
		callTimeout:  cfg.CallTimeout,
		maxContext:   cfg.MaxContextMessages,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		defaultModel: cfg.DefaultModel,
	}
	if e.callTimeout <= 0 {
		e.callTimeout = 60 * time.Second
	}
	if e.maxContext <= 0 {
		e.maxContext = 20
	}
	if e.history == nil {
		e.history = state.NewHistory(state.DefaultHistoryCapacity)
	}
	if e.monitor == nil {
		e.monitor = monitor.New()
	}
	return e
}

// History exposes the snapshot log for diagnostics.
func (e *Engine) History() *state.History {
	return e.history
}

// Monitor exposes the metric series the engine records into.
func (e *Engine) Monitor() *monitor.Monitor {
	return e.monitor
}

// nodeFn transforms a state the engine owns. It may mutate its argument
// freely; Execute only ever hands it a clone.
type nodeFn func(ctx context.Context, s *state.State) (*state.State, error)

// route maps a trigger to the stage-advance node that follows the reply
// node, or to nil when the turn ends after the reply. Unrecognized
// triggers are treated as chat so a malformed action cannot deadlock a
// session.
func (e *Engine) route(trigger state.Trigger) (string, nodeFn) {
	switch trigger {
	case state.TriggerChat:
		return "", nil
	case state.TriggerBrainstormDone:
		return NodeGenerateSummary, e.generateSummary
	case state.TriggerSummaryDone:
		return NodeGeneratePRDDraft, e.generatePRDDraft
	case state.TriggerPRDDone:
		return NodeTerminal, e.terminal
	default:
		return "", nil
	}
}

// Execute validates the state, runs the reply node when the inbound turn
// carried a user message, then routes on the trigger. Validation failures
// are raised to the caller with the full issue list; node failures are
// converted into a recovery state and never propagated.
func (e *Engine) Execute(ctx context.Context, s *state.State) (*state.State, error) {
	if err := state.Validate(s); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "engine.execute",
		trace.WithAttributes(
			attribute.String("session.idea_id", s.IdeaID),
			attribute.String("session.stage", string(s.CurrentStage)),
			attribute.String("session.trigger", string(s.LastUserAction)),
		),
	)
	defer span.End()

	next := s.Clone()
	next.IsProcessing = true

	// The reply node runs first whenever the turn carried a user message
	// (the transcript ends on a user turn). Stage-advance triggers arrive
	// without one and skip straight to routing.
	if n := len(next.Messages); n > 0 && next.Messages[n-1].Role == state.RoleUser {
		next = e.runNode(ctx, NodeProcessUserTurn, next, e.processUserTurn)
		if next.Error != "" {
			monitor.RecordEngineTurn(string(next.LastUserAction))
			return next, nil
		}
	}

	name, fn := e.route(next.LastUserAction)
	if fn == nil {
		if !next.LastUserAction.Valid() {
			// Defensive default, surfaced at the telemetry layer only.
			e.monitor.RecordMetric("unrecognized_trigger_total", 1)
			monitor.RecordEngineTurn("unrecognized")
		} else {
			monitor.RecordEngineTurn(string(next.LastUserAction))
		}
		next.IsProcessing = false
		next.Touch()
		return next, nil
	}

	next = e.runNode(ctx, name, next, fn)
	monitor.RecordEngineTurn(string(next.LastUserAction))
	return next, nil
}

// RunMarketResearch executes the market-research side branch. Precondition:
// a summary completion exists in the message history.
func (e *Engine) RunMarketResearch(ctx context.Context, s *state.State) (*state.State, error) {
	if err := state.Validate(s); err != nil {
		return nil, err
	}
	if _, ok := state.LatestMessageByStage(s, state.StageSummary, state.RoleAssistant); !ok {
		return nil, fmt.Errorf("market research requires a completed summary for session %s", s.IdeaID)
	}

	next := s.Clone()
	next.IsProcessing = true
	return e.runNode(ctx, NodeMarketResearch, next, e.marketResearch), nil
}

// SendPRDNotification executes the notification side branch, delivering
// the PRD draft to recipient. Precondition: a PRD completion exists in the
// message history.
func (e *Engine) SendPRDNotification(ctx context.Context, s *state.State, recipient string) (*state.State, error) {
	if err := state.Validate(s); err != nil {
		return nil, err
	}
	if _, ok := state.LatestMessageByStage(s, state.StagePRD, state.RoleAssistant); !ok {
		return nil, fmt.Errorf("notification requires a completed PRD draft for session %s", s.IdeaID)
	}

	next := s.Clone()
	next.IsProcessing = true
	node := func(ctx context.Context, st *state.State) (*state.State, error) {
		return e.notifyPRD(ctx, st, recipient)
	}
	return e.runNode(ctx, NodeNotify, next, node), nil
}

// runNode executes one node with uniform failure semantics: any error is
// caught at the node boundary and converted into a recovery state derived
// from the node's input, so a failed node never partially applies its
// mutation. Every execution leaves one history snapshot.
func (e *Engine) runNode(ctx context.Context, name string, s *state.State, fn nodeFn) *state.State {
	ctx, span := observability.StartSpan(ctx, "engine.node."+name)
	defer span.End()

	input := s.Clone()
	var out *state.State
	err := e.monitor.MeasureOperation(name, func() error {
		var nerr error
		out, nerr = fn(ctx, s)
		return nerr
	})
	if err != nil {
		span.RecordError(err)
		out = state.RecoveryState(input, err)
	}

	e.history.AddSnapshot(name, out, map[string]any{
		"trigger": string(out.LastUserAction),
		"failed":  err != nil,
	})
	return out
}

// invokeModel resolves the stage's model and performs one bounded
// capability call.
func (e *Engine) invokeModel(ctx context.Context, s *state.State, stage state.Stage, system string, window []state.Message) (string, error) {
	modelID := s.ModelFor(stage, e.defaultModel)
	if modelID == "" {
		return "", fmt.Errorf("no model selected for stage %s", stage)
	}
	p, model, err := e.registry.Resolve(modelID)
	if err != nil {
		return "", err
	}

	messages := make([]provider.Message, 0, len(window))
	for _, m := range window {
		messages = append(messages, provider.Message{Role: string(m.Role), Content: m.Content})
	}

	cctx, cancel := context.WithTimeout(provider.WithSession(ctx, s.IdeaID), e.callTimeout)
	defer cancel()

	resp, err := p.Invoke(cctx, provider.Request{
		Model:       model,
		System:      system,
		Messages:    messages,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
