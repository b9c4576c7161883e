package reminder

import (
	"context"
	"time"
)

// Reminder is a pending (time, message, recipient) triple. It lives in the
// store from creation until the poller fires it or the user deletes it.
type Reminder struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	DueAt     time.Time `json:"due_at"`
	// TimeLabel is the time exactly as the user wrote it, kept for display.
	TimeLabel string `json:"time_label"`
}

// Sender dispatches a fired reminder back to the chat client.
type Sender interface {
	SendText(ctx context.Context, recipient, text string) error
}
