package engine

import (
	"context"
	"fmt"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

// processUserTurn answers the pending user message in the current stage.
// It builds the alternating context window, invokes the stage's model, and
// appends the reply tagged with the current stage. Stage and trigger are
// left untouched.
func (e *Engine) processUserTurn(ctx context.Context, s *state.State) (*state.State, error) {
	window := state.ConversationContext(s, e.maxContext)
	content, err := e.invokeModel(ctx, s, s.CurrentStage, s.PromptFor(s.CurrentStage), window)
	if err != nil {
		return nil, err
	}

	s.AppendMessage(state.Message{
		Role:            state.RoleAssistant,
		Content:         content,
		StageAtCreation: s.CurrentStage,
	})
	if s.CurrentStage == state.StageBrainstorm {
		advanceChecklist(s)
	}
	s.Error = ""
	return s, nil
}

// generateSummary condenses the entire transcript into a summary. No
// windowing: summarization needs full context.
func (e *Engine) generateSummary(ctx context.Context, s *state.State) (*state.State, error) {
	content, err := e.invokeModel(ctx, s, state.StageSummary, s.PromptFor(state.StageSummary), s.Messages)
	if err != nil {
		return nil, err
	}

	s.AppendMessage(state.Message{
		Role:            state.RoleAssistant,
		Content:         content,
		StageAtCreation: state.StageSummary,
	})
	s.CurrentStage = state.StageSummary
	s.Error = ""
	s.IsProcessing = false
	return s, nil
}

// generatePRDDraft writes the PRD from the summary plus any subsequent
// PRD-stage refinement messages. The full brainstorm is deliberately left
// out to bound context size.
func (e *Engine) generatePRDDraft(ctx context.Context, s *state.State) (*state.State, error) {
	window := prdContext(s)
	if len(window) == 0 {
		return nil, fmt.Errorf("no summary available to draft a PRD from")
	}

	content, err := e.invokeModel(ctx, s, state.StagePRD, s.PromptFor(state.StagePRD), window)
	if err != nil {
		return nil, err
	}

	s.AppendMessage(state.Message{
		Role:            state.RoleAssistant,
		Content:         content,
		StageAtCreation: state.StagePRD,
	})
	s.CurrentStage = state.StagePRD
	s.Error = ""
	s.IsProcessing = false
	return s, nil
}

// marketResearch explores the competitive landscape using the summary as
// the only context.
func (e *Engine) marketResearch(ctx context.Context, s *state.State) (*state.State, error) {
	summary, ok := state.LatestMessageByStage(s, state.StageSummary, state.RoleAssistant)
	if !ok {
		return nil, fmt.Errorf("no summary available for market research")
	}

	window := []state.Message{{Role: state.RoleUser, Content: summary.Content}}
	content, err := e.invokeModel(ctx, s, state.StageMarketResearch, s.PromptFor(state.StageMarketResearch), window)
	if err != nil {
		return nil, err
	}

	s.AppendMessage(state.Message{
		Role:            state.RoleAssistant,
		Content:         content,
		StageAtCreation: state.StageMarketResearch,
	})
	s.CurrentStage = state.StageMarketResearch
	s.Error = ""
	s.IsProcessing = false
	return s, nil
}

// notifyPRD delivers the PRD draft through the notification capability and
// records the delivery in the transcript.
func (e *Engine) notifyPRD(ctx context.Context, s *state.State, recipient string) (*state.State, error) {
	if e.notifier == nil {
		return nil, fmt.Errorf("no notifier configured")
	}
	prd, _ := state.LatestMessageByStage(s, state.StagePRD, state.RoleAssistant)

	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	subject := fmt.Sprintf("PRD draft for idea %s", s.IdeaID)
	result, err := e.notifier.Send(cctx, recipient, subject, prd.Content, false)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, fmt.Errorf("notification rejected: %s", result.Error)
	}

	s.AppendMessage(state.Message{
		Role:            state.RoleAssistant,
		Content:         fmt.Sprintf("The PRD draft was delivered to %s.", recipient),
		StageAtCreation: state.StageMarketResearch,
	})
	s.CurrentStage = state.StageMarketResearch
	s.Error = ""
	s.IsProcessing = false
	return s, nil
}

// terminal ends the workflow: the state is returned unchanged except that
// processing is cleared.
func (e *Engine) terminal(ctx context.Context, s *state.State) (*state.State, error) {
	s.IsProcessing = false
	s.Touch()
	return s, nil
}

// prdContext selects the latest summary completion and every PRD-stage
// message that follows it, preserving transcript order.
func prdContext(s *state.State) []state.Message {
	summaryIdx := -1
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.StageAtCreation == state.StageSummary && m.Role == state.RoleAssistant {
			summaryIdx = i
			break
		}
	}
	if summaryIdx < 0 {
		return nil
	}

	// The summary is fed back as user context for the drafting model.
	window := []state.Message{{Role: state.RoleUser, Content: s.Messages[summaryIdx].Content}}
	for _, m := range s.Messages[summaryIdx+1:] {
		if m.StageAtCreation == state.StagePRD {
			window = append(window, m)
		}
	}
	return window
}

// advanceChecklist nudges the optional brainstorm progress model after a
// successful brainstorm exchange.
func advanceChecklist(s *state.State) {
	cl := s.Checklist
	if cl == nil {
		return
	}
	if cl.LastAddressedItem != "" {
		if cl.FollowUpCounts == nil {
			cl.FollowUpCounts = make(map[string]int)
		}
		cl.FollowUpCounts[cl.LastAddressedItem]++
	}
	if cl.Progress < 100 {
		cl.Progress += (100 - cl.Progress) / 4
		if cl.Progress > 100 {
			cl.Progress = 100
		}
	}
}
