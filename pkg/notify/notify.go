// Package notify defines the outbound notification capability consumed by
// the workflow engine, plus a Slack implementation.
package notify

import "context"

// Result reports the outcome of a delivery attempt.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Notifier delivers a formatted message to a recipient. Implementations
// must honor ctx cancellation and deadlines.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string, isHTML bool) (*Result, error)
}
