package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"xiaoz/app/service/reminder"

	"github.com/tmc/langchaingo/tools"
)

type agentTool struct {
	name        string
	description string
	call        func(ctx context.Context, input string) (string, error)
}

func (t *agentTool) Name() string {
	return t.name
}

func (t *agentTool) Description() string {
	return t.description
}

func (t *agentTool) Call(ctx context.Context, input string) (string, error) {
	return t.call(ctx, input)
}

// createReminderTools lets the model manage the sender's reminders
// directly. The tools are bound to the sender per call, never shared
// between users.
func (s *Service) createReminderTools(sender string) []tools.Tool {
	return []tools.Tool{
		&agentTool{
			name:        "reminder_list",
			description: "List the current user's pending reminders. Input is ignored.",
			call: func(ctx context.Context, input string) (string, error) {
				result, _ := json.Marshal(s.reminderSvc.ListByRecipient(sender))
				return string(result), nil
			},
		},
		&agentTool{
			name:        "reminder_add",
			description: `Schedule a reminder for the current user. Input must be a JSON object with text (string) and time (string, "YYYY/MM/DD HH:MM") fields. The time must be in the future.`,
			call: func(ctx context.Context, input string) (string, error) {
				var req struct {
					Text string `json:"text"`
					Time string `json:"time"`
				}
				if err := json.Unmarshal([]byte(input), &req); err != nil {
					return "", fmt.Errorf("invalid request JSON: %w", err)
				}

				dueAt, ok := reminder.ParseExplicitTime(req.Time)
				if !ok {
					return "", fmt.Errorf("time must match YYYY/MM/DD HH:MM")
				}
				if dueAt.Before(time.Now()) {
					return "", fmt.Errorf("time is in the past")
				}

				if _, err := s.reminderSvc.Add(sender, req.Text, dueAt, req.Time); err != nil {
					return "", err
				}

				return "ok", nil
			},
		},
		&agentTool{
			name:        "reminder_delete",
			description: "Delete the current user's first reminder whose text contains the given keyword. Input is the keyword.",
			call: func(ctx context.Context, input string) (string, error) {
				if _, ok := s.reminderSvc.DeleteByKeyword(sender, input); !ok {
					return "", fmt.Errorf("no matching reminder")
				}
				return "ok", nil
			},
		},
	}
}
