package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	s := New("idea-1", "user-1")

	assert.Equal(t, "idea-1", s.IdeaID)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, StageBrainstorm, s.CurrentStage)
	assert.Equal(t, TriggerChat, s.LastUserAction)
	assert.False(t, s.IsProcessing)
	assert.Empty(t, s.Messages)
	require.NotNil(t, s.CreatedAt)
	require.NotNil(t, s.UpdatedAt)
}

func TestCloneIsDeep(t *testing.T) {
	s := New("idea-1", "user-1")
	s.AppendMessage(Message{Role: RoleUser, Content: "hello", StageAtCreation: StageBrainstorm})
	s.SelectedModels = map[Stage]string{StagePRD: "openai/gpt-4o"}
	s.Checklist = &Checklist{
		ActiveItems:    []string{"audience", "pricing"},
		FollowUpCounts: map[string]int{"audience": 1},
		Progress:       25,
	}

	c := s.Clone()
	require.Equal(t, s, c)

	c.Messages[0].Content = "mutated"
	c.SelectedModels[StagePRD] = "mock/other"
	c.Checklist.ActiveItems[0] = "mutated"
	c.Checklist.FollowUpCounts["audience"] = 9

	assert.Equal(t, "hello", s.Messages[0].Content)
	assert.Equal(t, "openai/gpt-4o", s.SelectedModels[StagePRD])
	assert.Equal(t, "audience", s.Checklist.ActiveItems[0])
	assert.Equal(t, 1, s.Checklist.FollowUpCounts["audience"])
}

func TestAppendMessageStampsTime(t *testing.T) {
	s := New("idea-1", "user-1")
	s.AppendMessage(Message{Role: RoleUser, Content: "hi", StageAtCreation: StageBrainstorm})

	require.Len(t, s.Messages, 1)
	require.NotNil(t, s.Messages[0].CreatedAt)
	assert.WithinDuration(t, time.Now().UTC(), *s.Messages[0].CreatedAt, time.Minute)
}

func TestPromptForFallsBackToDefaults(t *testing.T) {
	s := New("idea-1", "user-1")

	// Built-in prompt when none is customized.
	assert.NotEmpty(t, s.PromptFor(StageBrainstorm))

	s.UserPrompts = map[Stage]string{StageBrainstorm: "be terse"}
	assert.Equal(t, "be terse", s.PromptFor(StageBrainstorm))
	assert.NotEmpty(t, s.PromptFor(StageSummary))
}

func TestModelFor(t *testing.T) {
	s := New("idea-1", "user-1")

	assert.Equal(t, "mock/default", s.ModelFor(StagePRD, "mock/default"))

	s.SelectedModels = map[Stage]string{StagePRD: "bedrock/claude"}
	assert.Equal(t, "bedrock/claude", s.ModelFor(StagePRD, "mock/default"))
	assert.Equal(t, "mock/default", s.ModelFor(StageSummary, "mock/default"))
}

func TestStageAndTriggerDomains(t *testing.T) {
	for _, st := range []Stage{StageBrainstorm, StageSummary, StagePRD, StageMarketResearch} {
		assert.True(t, st.Valid(), st)
	}
	assert.False(t, Stage("limbo").Valid())

	for _, tr := range []Trigger{TriggerChat, TriggerBrainstormDone, TriggerSummaryDone, TriggerPRDDone} {
		assert.True(t, tr.Valid(), tr)
	}
	assert.False(t, Trigger("Do A Backflip").Valid())
}
