// Package state defines the session state that the workflow engine operates
// on, along with read-only projections, durable serialization, recovery
// helpers, and bounded snapshot history.
//
// A session tracks one idea from brainstorm through summary to a PRD draft.
// The state is mutated exclusively by engine nodes, one full replacement per
// processed action; messages are append-only and never reordered.
package state

import (
	"time"
)

// Stage identifies a phase of the idea workflow.
type Stage string

const (
	// StageBrainstorm is the initial free-form exploration stage.
	StageBrainstorm Stage = "brainstorm"
	// StageSummary condenses the brainstorm into a structured summary.
	StageSummary Stage = "summary"
	// StagePRD produces the product requirements draft.
	StagePRD Stage = "prd"
	// StageMarketResearch is a side branch entered from summary.
	StageMarketResearch Stage = "market_research"
)

// Valid reports whether the stage is a member of the stage domain.
func (s Stage) Valid() bool {
	switch s {
	case StageBrainstorm, StageSummary, StagePRD, StageMarketResearch:
		return true
	}
	return false
}

// Trigger is a user action that drives the router.
type Trigger string

const (
	// TriggerChat is an ordinary conversational turn.
	TriggerChat Trigger = "chat"
	// TriggerBrainstormDone advances the session into the summary stage.
	TriggerBrainstormDone Trigger = "Brainstorm Done"
	// TriggerSummaryDone advances the session into the PRD stage.
	TriggerSummaryDone Trigger = "Summary Done"
	// TriggerPRDDone marks the workflow complete.
	TriggerPRDDone Trigger = "PRD Done"
)

// Valid reports whether the trigger is a member of the trigger domain.
// Unrecognized triggers are routed as chat rather than rejected, so Valid is
// used for telemetry, not for validation failures.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerChat, TriggerBrainstormDone, TriggerSummaryDone, TriggerPRDDone:
		return true
	}
	return false
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is a member of the role domain.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single transcript entry. Messages are immutable once
// appended; corrections are appended as new messages.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// CreatedAt is nil when the source record carried no date.
	CreatedAt *time.Time `json:"created_at,omitempty"`
	// StageAtCreation is the stage active when this message was produced.
	// It is set once and never recomputed.
	StageAtCreation Stage `json:"stage_at_creation"`
	// Attachment is an opaque stored-file handle, not interpreted here.
	Attachment string `json:"attachment,omitempty"`
}

// Checklist tracks brainstorm progress toward stage-advance readiness.
type Checklist struct {
	CompletedItems []string       `json:"completed_items,omitempty"`
	ActiveItems    []string       `json:"active_items,omitempty"`
	PartialItems   []string       `json:"partial_items,omitempty"`
	FollowUpCounts map[string]int `json:"follow_up_counts,omitempty"`
	// Progress is a 0-100 signal of how much brainstorm ground is covered.
	Progress          int    `json:"progress"`
	LastAddressedItem string `json:"last_addressed_item,omitempty"`
}

// State is the full session state for one idea.
type State struct {
	// IdeaID is the stable primary key for the session. Never changes.
	IdeaID string `json:"idea_id"`
	// UserID identifies the owner (optional).
	UserID string `json:"user_id,omitempty"`
	// Messages is the append-only transcript in creation order.
	Messages []Message `json:"messages"`
	// CurrentStage only moves through node execution, never by direct
	// external mutation.
	CurrentStage Stage `json:"current_stage"`
	// LastUserAction is the most recent trigger, overwritten each turn.
	LastUserAction Trigger `json:"last_user_action"`
	// UserPrompts maps stage name to a user-customized instruction.
	UserPrompts map[Stage]string `json:"user_prompts,omitempty"`
	// SelectedModels maps stage name to a model identifier.
	SelectedModels map[Stage]string `json:"selected_models,omitempty"`
	// IsProcessing is true exactly while a node executes for this session.
	IsProcessing bool `json:"is_processing"`
	// Error holds the last node failure, cleared on success or recovery.
	Error     string     `json:"error,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	// Checklist is optional brainstorm progress tracking.
	Checklist *Checklist `json:"checklist_state,omitempty"`
}

// New creates a fresh session state in the brainstorm stage.
func New(ideaID, userID string) *State {
	now := time.Now().UTC()
	return &State{
		IdeaID:         ideaID,
		UserID:         userID,
		Messages:       []Message{},
		CurrentStage:   StageBrainstorm,
		LastUserAction: TriggerChat,
		CreatedAt:      &now,
		UpdatedAt:      &now,
	}
}

// Clone returns a deep copy. Engine nodes operate on clones so that a
// cancelled or failed turn never leaves a partially mutated input state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.UserPrompts != nil {
		out.UserPrompts = make(map[Stage]string, len(s.UserPrompts))
		for k, v := range s.UserPrompts {
			out.UserPrompts[k] = v
		}
	}
	if s.SelectedModels != nil {
		out.SelectedModels = make(map[Stage]string, len(s.SelectedModels))
		for k, v := range s.SelectedModels {
			out.SelectedModels[k] = v
		}
	}
	if s.CreatedAt != nil {
		t := *s.CreatedAt
		out.CreatedAt = &t
	}
	if s.UpdatedAt != nil {
		t := *s.UpdatedAt
		out.UpdatedAt = &t
	}
	if s.Checklist != nil {
		cl := *s.Checklist
		cl.CompletedItems = append([]string(nil), s.Checklist.CompletedItems...)
		cl.ActiveItems = append([]string(nil), s.Checklist.ActiveItems...)
		cl.PartialItems = append([]string(nil), s.Checklist.PartialItems...)
		if s.Checklist.FollowUpCounts != nil {
			cl.FollowUpCounts = make(map[string]int, len(s.Checklist.FollowUpCounts))
			for k, v := range s.Checklist.FollowUpCounts {
				cl.FollowUpCounts[k] = v
			}
		}
		out.Checklist = &cl
	}
	return &out
}

// AppendMessage adds a message to the transcript and refreshes UpdatedAt.
func (s *State) AppendMessage(msg Message) {
	if msg.CreatedAt == nil {
		now := time.Now().UTC()
		msg.CreatedAt = &now
	}
	s.Messages = append(s.Messages, msg)
	s.Touch()
}

// Touch refreshes UpdatedAt.
func (s *State) Touch() {
	now := time.Now().UTC()
	s.UpdatedAt = &now
}

// PromptFor returns the user-customized instruction for a stage, or the
// built-in default when none is configured.
func (s *State) PromptFor(stage Stage) string {
	if p, ok := s.UserPrompts[stage]; ok && p != "" {
		return p
	}
	return defaultPrompts[stage]
}

// ModelFor returns the model selected for a stage, or the fallback when
// none is configured.
func (s *State) ModelFor(stage Stage, fallback string) string {
	if m, ok := s.SelectedModels[stage]; ok && m != "" {
		return m
	}
	return fallback
}

var defaultPrompts = map[Stage]string{
	StageBrainstorm: "You are a product brainstorming partner. Ask probing " +
		"questions, surface hidden assumptions, and help the user explore the " +
		"idea from user, market, and technical angles. Keep replies short.",
	StageSummary: "Condense the full brainstorm conversation into a structured " +
		"summary: problem, target users, proposed solution, key risks, and open " +
		"questions. Do not invent details that were not discussed.",
	StagePRD: "Write a product requirements draft from the summary and any " +
		"refinement notes: overview, goals, non-goals, user stories, " +
		"requirements, and success metrics.",
	StageMarketResearch: "Outline the competitive landscape for this idea: " +
		"adjacent products, differentiators, and the sharpest risks to " +
		"defensibility. Base the outline on the summary only.",
}
