package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

type recordingRunner struct {
	trigger  state.Trigger
	message  string
	research bool
	notified string
}

func (r *recordingRunner) SubmitAction(ctx context.Context, ideaID string, trigger state.Trigger, message string) (*state.State, error) {
	r.trigger, r.message = trigger, message
	return state.New(ideaID, "u"), nil
}

func (r *recordingRunner) RunMarketResearch(ctx context.Context, ideaID string) (*state.State, error) {
	r.research = true
	return state.New(ideaID, "u"), nil
}

func (r *recordingRunner) NotifyPRD(ctx context.Context, ideaID, recipient string) (*state.State, error) {
	r.notified = recipient
	return state.New(ideaID, "u"), nil
}

func TestDispatchChatMessage(t *testing.T) {
	r := &recordingRunner{}
	st := state.New("idea-1", "u")

	if _, err := dispatch(context.Background(), r, st, "an app for plant care", ""); err != nil {
		t.Fatalf("dispatch() error = %v", err)
	}
	if r.trigger != state.TriggerChat || r.message != "an app for plant care" {
		t.Errorf("dispatched trigger=%q message=%q", r.trigger, r.message)
	}
}

func TestDispatchDonePerStage(t *testing.T) {
	tests := []struct {
		stage state.Stage
		want  state.Trigger
	}{
		{state.StageBrainstorm, state.TriggerBrainstormDone},
		{state.StageSummary, state.TriggerSummaryDone},
		{state.StagePRD, state.TriggerPRDDone},
	}
	for _, tt := range tests {
		r := &recordingRunner{}
		st := state.New("idea-1", "u")
		st.CurrentStage = tt.stage

		if _, err := dispatch(context.Background(), r, st, "/done", ""); err != nil {
			t.Fatalf("dispatch(/done) in %s error = %v", tt.stage, err)
		}
		if r.trigger != tt.want {
			t.Errorf("stage %s: trigger = %q, want %q", tt.stage, r.trigger, tt.want)
		}
	}
}

func TestDispatchDoneInResearchStage(t *testing.T) {
	r := &recordingRunner{}
	st := state.New("idea-1", "u")
	st.CurrentStage = state.StageMarketResearch

	if _, err := dispatch(context.Background(), r, st, "/done", ""); err == nil {
		t.Error("expected error for /done in market_research stage")
	}
}

func TestDispatchResearchAndNotify(t *testing.T) {
	r := &recordingRunner{}
	st := state.New("idea-1", "u")

	if _, err := dispatch(context.Background(), r, st, "/research", ""); err != nil {
		t.Fatalf("dispatch(/research) error = %v", err)
	}
	if !r.research {
		t.Error("research not invoked")
	}

	if _, err := dispatch(context.Background(), r, st, "/notify", "#product"); err != nil {
		t.Fatalf("dispatch(/notify) error = %v", err)
	}
	if r.notified != "#product" {
		t.Errorf("notified %q, want #product", r.notified)
	}

	if _, err := dispatch(context.Background(), r, st, "/notify", ""); err == nil {
		t.Error("expected error with no channel configured")
	}
}

func TestDispatchQuitAndUnknown(t *testing.T) {
	r := &recordingRunner{}
	st := state.New("idea-1", "u")

	if _, err := dispatch(context.Background(), r, st, "/quit", ""); !errors.Is(err, errQuit) {
		t.Errorf("dispatch(/quit) error = %v, want errQuit", err)
	}
	if _, err := dispatch(context.Background(), r, st, "/frobnicate", ""); err == nil {
		t.Error("expected error for unknown command")
	}
}
