package state

import "fmt"

// Recovery helpers derive a safe state from a prior one. They always return
// copies; the input is never mutated.

// RecoveryState returns a copy of s with the error recorded, processing
// cleared, and one assistant message appended that explains the failure in
// user-facing language. Message count strictly increases by one so the
// transcript stays self-documenting even when generation failed.
func RecoveryState(s *State, cause error) *State {
	out := s.Clone()
	out.Error = cause.Error()
	out.IsProcessing = false
	out.AppendMessage(Message{
		Role: RoleAssistant,
		Content: fmt.Sprintf(
			"Something went wrong while working on this step: %v. Your conversation is intact; you can retry the same action.",
			cause),
		StageAtCreation: out.CurrentStage,
	})
	return out
}

// ClearError returns a copy of s with the error unset. No other field changes.
func ClearError(s *State) *State {
	out := s.Clone()
	out.Error = ""
	return out
}

// ResetToSafeState rescues a session stuck mid-transition: processing and
// error are cleared and the trigger is forced back to chat. Stage and
// messages are preserved.
func ResetToSafeState(s *State) *State {
	out := s.Clone()
	out.IsProcessing = false
	out.Error = ""
	out.LastUserAction = TriggerChat
	out.Touch()
	return out
}
