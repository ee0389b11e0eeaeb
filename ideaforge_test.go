package ideaforge

import (
	"context"
	"testing"

	"github.com/ideaforge-dev/ideaforge/pkg/config"
)

func TestOpenWithFileBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Dir = t.TempDir()
	cfg.Session.JanitorSchedule = "off"
	cfg.StageModels = map[string]string{"prd": "bedrock/claude"}

	app, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer app.Close(context.Background())

	st, err := app.Orchestrator.CreateSession(context.Background(), "idea-1", "user-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if st.IdeaID != "idea-1" {
		t.Errorf("idea id = %q", st.IdeaID)
	}

	// stage_models from config reach every new session.
	if got := st.SelectedModels["prd"]; got != "bedrock/claude" {
		t.Errorf("prd model = %q, want bedrock/claude", got)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "tape"

	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestDefaultScheme(t *testing.T) {
	tests := []struct {
		modelID string
		want    string
	}{
		{"openai/gpt-4o", "openai"},
		{"bedrock/anthropic.claude-3-5-sonnet-20241022-v2:0", "bedrock"},
		{"gpt-4o", "openai"},
		{"", "openai"},
	}
	for _, tt := range tests {
		if got := defaultScheme(tt.modelID); got != tt.want {
			t.Errorf("defaultScheme(%q) = %q, want %q", tt.modelID, got, tt.want)
		}
	}
}
