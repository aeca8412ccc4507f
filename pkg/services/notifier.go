package services

import "context"

// Notifier posts plain-text messages to a chat outside the agent's reply.
type Notifier interface {
	NotifyText(ctx context.Context, chatID, text string) error
}
