package ntfy

import (
	"context"

	"github.com/andrewinci/actual-sync/internal/platform/sync"
)

// NotifierAdapter adapts the ntfy client to the sync.Notifier interface
type NotifierAdapter struct {
	client *Client
}

var _ sync.Notifier = (*NotifierAdapter)(nil)

// NewNotifierAdapter creates a new ntfy notifier adapter
func NewNotifierAdapter(client *Client) *NotifierAdapter {
	return &NotifierAdapter{client: client}
}

// Post publishes the run notification
func (a *NotifierAdapter) Post(ctx context.Context, n sync.Notification) error {
	return a.client.Publish(ctx, Message{
		Title:    n.Title,
		Body:     n.Body,
		Tags:     n.Tags,
		Priority: n.Priority,
	})
}
