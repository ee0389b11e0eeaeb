package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/ideaforge-dev/ideaforge/pkg/state"
)

var (
	chatIdeaID string
	chatUserID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session: brainstorm an idea into a PRD",
	Long: `chat starts or resumes a workflow session on the terminal.

Slash commands advance the workflow:
  /done      finish the current stage
  /research  run market research (requires a summary)
  /notify    deliver the PRD draft (requires a PRD and a notifier)
  /state     print the session stage and error status
  /quit      exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatIdeaID, "idea", "", "idea id to resume (default: new session)")
	chatCmd.Flags().StringVar(&chatUserID, "user", "local", "user id recorded on the session")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, cleanup, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	orch := app.Orchestrator

	ideaID := chatIdeaID
	if ideaID == "" {
		ideaID = uuid.New().String()
		if _, err := orch.CreateSession(ctx, ideaID, chatUserID); err != nil {
			return err
		}
		fmt.Printf("new session %s\n", ideaID)
	} else if _, err := orch.GetSession(ctx, ideaID); err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		st, err := orch.GetSession(ctx, ideaID)
		if err != nil {
			return err
		}

		input, err := line.Prompt(fmt.Sprintf("[%s] > ", st.CurrentStage))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		out, err := dispatch(ctx, orch, st, input, cfg.Notify.SlackChannel)
		if err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Printf("error: %v\n", err)
			continue
		}
		if out == nil {
			continue
		}
		if out.Error != "" {
			fmt.Printf("! %s\n", out.Error)
		}
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == state.RoleAssistant {
			fmt.Printf("\n%s\n\n", out.Messages[n-1].Content)
		}
	}
}

var errQuit = errors.New("quit")

// dispatch maps one line of input to a workflow action.
func dispatch(ctx context.Context, orch sessionRunner, st *state.State, input, notifyTo string) (*state.State, error) {
	switch input {
	case "/quit", "/exit":
		return nil, errQuit

	case "/state":
		fmt.Printf("session %s  stage=%s  messages=%d", st.IdeaID, st.CurrentStage, len(st.Messages))
		if st.Error != "" {
			fmt.Printf("  error=%q", st.Error)
		}
		fmt.Println()
		return nil, nil

	case "/done":
		trigger, ok := doneTrigger(st.CurrentStage)
		if !ok {
			return nil, fmt.Errorf("stage %s has no completion action", st.CurrentStage)
		}
		return orch.SubmitAction(ctx, st.IdeaID, trigger, "")

	case "/research":
		return orch.RunMarketResearch(ctx, st.IdeaID)

	case "/notify":
		if notifyTo == "" {
			return nil, fmt.Errorf("no notification channel configured")
		}
		return orch.NotifyPRD(ctx, st.IdeaID, notifyTo)

	default:
		if strings.HasPrefix(input, "/") {
			return nil, fmt.Errorf("unknown command %s", input)
		}
		return orch.SubmitAction(ctx, st.IdeaID, state.TriggerChat, input)
	}
}

// doneTrigger maps a stage to the action that completes it.
func doneTrigger(stage state.Stage) (state.Trigger, bool) {
	switch stage {
	case state.StageBrainstorm:
		return state.TriggerBrainstormDone, true
	case state.StageSummary:
		return state.TriggerSummaryDone, true
	case state.StagePRD:
		return state.TriggerPRDDone, true
	default:
		return "", false
	}
}

// sessionRunner is the slice of the orchestrator the REPL needs.
type sessionRunner interface {
	SubmitAction(ctx context.Context, ideaID string, trigger state.Trigger, message string) (*state.State, error)
	RunMarketResearch(ctx context.Context, ideaID string) (*state.State, error)
	NotifyPRD(ctx context.Context, ideaID, recipient string) (*state.State, error)
}
