package state

import "strings"

// Read-only projections over a session state. None of these mutate the
// input; derived sequences are always fresh slices.

// MessagesByRole returns the messages authored by role, in transcript order.
func MessagesByRole(s *State, role Role) []Message {
	var out []Message
	for _, m := range s.Messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// MessagesForCurrentStage returns the messages whose stage at creation
// matches the session's current stage.
func MessagesForCurrentStage(s *State) []Message {
	var out []Message
	for _, m := range s.Messages {
		if m.StageAtCreation == s.CurrentStage {
			out = append(out, m)
		}
	}
	return out
}

// IsReadyForStageTransition reports whether the last user action is one of
// the stage-advance triggers.
func IsReadyForStageTransition(s *State) bool {
	switch s.LastUserAction {
	case TriggerBrainstormDone, TriggerSummaryDone, TriggerPRDDone:
		return true
	}
	return false
}

// BrainstormReady reports whether the brainstorm checklist has gathered
// enough signal to allow a stage-advance trigger. Sessions without a
// checklist are always ready; the checklist is an optional gate.
func BrainstormReady(s *State, minProgress int) bool {
	if s.Checklist == nil {
		return true
	}
	return s.Checklist.Progress >= minProgress
}

// ConversationContext returns the most recent maxMessages transcript
// entries reshaped to strictly alternate user/assistant roles. Consecutive
// same-role messages are merged into one turn, because downstream model
// calls require alternating turns. The result never aliases the stored
// messages.
func ConversationContext(s *State, maxMessages int) []Message {
	if maxMessages <= 0 || len(s.Messages) == 0 {
		return nil
	}

	merged := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			prev := &merged[n-1]
			prev.Content = strings.TrimSpace(prev.Content + "\n\n" + m.Content)
			// The merged turn keeps the earlier timestamp and stage tag.
			continue
		}
		merged = append(merged, m)
	}

	if len(merged) > maxMessages {
		merged = merged[len(merged)-maxMessages:]
	}
	return merged
}

// LatestMessageByStage returns the most recent message tagged with stage,
// optionally restricted to a role. The second return is false when no such
// message exists.
func LatestMessageByStage(s *State, stage Stage, role Role) (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.StageAtCreation == stage && (role == "" || m.Role == role) {
			return m, true
		}
	}
	return Message{}, false
}
