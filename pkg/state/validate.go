package state

import "fmt"

// Validate checks the structural invariants of a session state. It returns
// a *ValidationError listing every violated field, or nil when the state is
// well-formed. Unrecognized triggers are not a violation (they route as
// chat), but an empty trigger is.
func Validate(s *State) error {
	if s == nil {
		return &ValidationError{Issues: []string{"state is nil"}}
	}

	var issues []string
	if s.IdeaID == "" {
		issues = append(issues, "idea_id is required")
	}
	if !s.CurrentStage.Valid() {
		issues = append(issues, fmt.Sprintf("current_stage %q is not a known stage", s.CurrentStage))
	}
	if s.LastUserAction == "" {
		issues = append(issues, "last_user_action is required")
	}
	for i, m := range s.Messages {
		if !m.Role.Valid() {
			issues = append(issues, fmt.Sprintf("messages[%d].role %q is not a known role", i, m.Role))
		}
		if !m.StageAtCreation.Valid() {
			issues = append(issues, fmt.Sprintf("messages[%d].stage_at_creation %q is not a known stage", i, m.StageAtCreation))
		}
	}
	for stage := range s.UserPrompts {
		if !stage.Valid() {
			issues = append(issues, fmt.Sprintf("user_prompts contains unknown stage %q", stage))
		}
	}
	for stage := range s.SelectedModels {
		if !stage.Valid() {
			issues = append(issues, fmt.Sprintf("selected_models contains unknown stage %q", stage))
		}
	}
	if s.Checklist != nil && (s.Checklist.Progress < 0 || s.Checklist.Progress > 100) {
		issues = append(issues, fmt.Sprintf("checklist_state.progress %d is outside 0-100", s.Checklist.Progress))
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
