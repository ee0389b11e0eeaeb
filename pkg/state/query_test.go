package state

import (
	"testing"
)

func msg(role Role, content string, stage Stage) Message {
	return Message{Role: role, Content: content, StageAtCreation: stage}
}

func TestMessagesByRole(t *testing.T) {
	s := New("idea-1", "")
	s.AppendMessage(msg(RoleUser, "a", StageBrainstorm))
	s.AppendMessage(msg(RoleAssistant, "b", StageBrainstorm))
	s.AppendMessage(msg(RoleUser, "c", StageBrainstorm))

	users := MessagesByRole(s, RoleUser)
	if len(users) != 2 {
		t.Fatalf("MessagesByRole(user) = %d messages, want 2", len(users))
	}
	if users[0].Content != "a" || users[1].Content != "c" {
		t.Errorf("user messages out of order: %q, %q", users[0].Content, users[1].Content)
	}

	assistants := MessagesByRole(s, RoleAssistant)
	if len(assistants) != 1 || assistants[0].Content != "b" {
		t.Errorf("MessagesByRole(assistant) = %v, want single %q", assistants, "b")
	}
}

func TestMessagesForCurrentStage(t *testing.T) {
	s := New("idea-1", "")
	s.AppendMessage(msg(RoleUser, "brainstorm turn", StageBrainstorm))
	s.AppendMessage(msg(RoleAssistant, "summary text", StageSummary))
	s.CurrentStage = StageSummary

	got := MessagesForCurrentStage(s)
	if len(got) != 1 || got[0].Content != "summary text" {
		t.Fatalf("MessagesForCurrentStage() = %v, want single summary message", got)
	}
}

func TestIsReadyForStageTransition(t *testing.T) {
	tests := []struct {
		trigger Trigger
		want    bool
	}{
		{TriggerChat, false},
		{TriggerBrainstormDone, true},
		{TriggerSummaryDone, true},
		{TriggerPRDDone, true},
		{Trigger("bogus"), false},
	}
	for _, tt := range tests {
		s := New("idea-1", "")
		s.LastUserAction = tt.trigger
		if got := IsReadyForStageTransition(s); got != tt.want {
			t.Errorf("IsReadyForStageTransition(%q) = %v, want %v", tt.trigger, got, tt.want)
		}
	}
}

func TestConversationContextAlternation(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		max   int
	}{
		{"already alternating", []Role{RoleUser, RoleAssistant, RoleUser}, 10},
		{"double user", []Role{RoleUser, RoleUser, RoleAssistant}, 10},
		{"double assistant", []Role{RoleUser, RoleAssistant, RoleAssistant, RoleUser}, 10},
		{"long same-role run", []Role{RoleUser, RoleUser, RoleUser, RoleUser}, 10},
		{"windowed", []Role{RoleUser, RoleAssistant, RoleUser, RoleAssistant, RoleUser}, 2},
		{"mixed runs windowed", []Role{RoleUser, RoleUser, RoleAssistant, RoleAssistant, RoleUser, RoleUser}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("idea-1", "")
			for i, r := range tt.roles {
				s.AppendMessage(msg(r, string(rune('a'+i)), StageBrainstorm))
			}

			got := ConversationContext(s, tt.max)
			if len(got) == 0 {
				t.Fatal("ConversationContext() returned no messages")
			}
			if len(got) > tt.max {
				t.Errorf("window = %d messages, want at most %d", len(got), tt.max)
			}
			for i := 1; i < len(got); i++ {
				if got[i].Role == got[i-1].Role {
					t.Errorf("consecutive messages %d and %d share role %q", i-1, i, got[i].Role)
				}
			}
		})
	}
}

func TestConversationContextMergesContent(t *testing.T) {
	s := New("idea-1", "")
	s.AppendMessage(msg(RoleUser, "first thought", StageBrainstorm))
	s.AppendMessage(msg(RoleUser, "second thought", StageBrainstorm))

	got := ConversationContext(s, 10)
	if len(got) != 1 {
		t.Fatalf("ConversationContext() = %d messages, want 1 merged turn", len(got))
	}
	if got[0].Content != "first thought\n\nsecond thought" {
		t.Errorf("merged content = %q", got[0].Content)
	}
	// Stored messages must be untouched.
	if s.Messages[0].Content != "first thought" {
		t.Errorf("stored message mutated: %q", s.Messages[0].Content)
	}
}

func TestConversationContextEmpty(t *testing.T) {
	s := New("idea-1", "")
	if got := ConversationContext(s, 5); got != nil {
		t.Errorf("ConversationContext(empty) = %v, want nil", got)
	}
	s.AppendMessage(msg(RoleUser, "hello", StageBrainstorm))
	if got := ConversationContext(s, 0); got != nil {
		t.Errorf("ConversationContext(max=0) = %v, want nil", got)
	}
}

func TestLatestMessageByStage(t *testing.T) {
	s := New("idea-1", "")
	s.AppendMessage(msg(RoleUser, "chat", StageBrainstorm))
	s.AppendMessage(msg(RoleAssistant, "summary v1", StageSummary))
	s.AppendMessage(msg(RoleAssistant, "summary v2", StageSummary))

	got, ok := LatestMessageByStage(s, StageSummary, RoleAssistant)
	if !ok || got.Content != "summary v2" {
		t.Fatalf("LatestMessageByStage() = %q, %v; want %q, true", got.Content, ok, "summary v2")
	}

	if _, ok := LatestMessageByStage(s, StagePRD, RoleAssistant); ok {
		t.Error("LatestMessageByStage(prd) = ok, want none")
	}
}

func TestBrainstormReady(t *testing.T) {
	s := New("idea-1", "")
	if !BrainstormReady(s, 70) {
		t.Error("sessions without a checklist must always be ready")
	}

	s.Checklist = &Checklist{Progress: 40}
	if BrainstormReady(s, 70) {
		t.Error("progress 40 should not satisfy threshold 70")
	}
	s.Checklist.Progress = 70
	if !BrainstormReady(s, 70) {
		t.Error("progress 70 should satisfy threshold 70")
	}
}
