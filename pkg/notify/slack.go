package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier delivers notifications to a Slack channel. The recipient is
// a channel id; subject and body are posted as one message.
type SlackNotifier struct {
	api *slack.Client
}

// NewSlackNotifier creates a Slack notifier from a bot token.
func NewSlackNotifier(token string) (*SlackNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("slack token is required")
	}
	return &SlackNotifier{api: slack.New(token)}, nil
}

// Send posts the message. Slack renders mrkdwn, so isHTML is ignored.
func (n *SlackNotifier) Send(ctx context.Context, recipient, subject, body string, isHTML bool) (*Result, error) {
	text := body
	if subject != "" {
		text = fmt.Sprintf("*%s*\n\n%s", subject, body)
	}

	_, timestamp, err := n.api.PostMessageContext(ctx, recipient,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, fmt.Errorf("post slack message: %w", err)
	}

	return &Result{Success: true, ID: timestamp}, nil
}
