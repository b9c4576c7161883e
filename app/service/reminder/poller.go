package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunPollLoop wakes on every tick, takes all due reminders out of the store
// and dispatches them. Dispatch is best effort: a failed send is logged and
// the reminder is dropped, the loop itself never stops on an error.
func (s *Service) RunPollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Reminder.PollInterval)
	defer ticker.Stop()

	slog.Info("Reminder poller started", "interval", s.cfg.Reminder.PollInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

func (s *Service) tick(ctx context.Context, now time.Time) {
	for _, r := range s.TakeDue(now) {
		if err := s.sender.SendText(ctx, r.Recipient, formatReminder(r)); err != nil {
			slog.Error("Failed to dispatch reminder, dropping it",
				"recipient", r.Recipient,
				"text", r.Text,
				"error", err,
			)
			continue
		}

		slog.Info("Dispatched reminder",
			"recipient", r.Recipient,
			"text", r.Text,
			"due_at", r.DueAt,
		)
	}
}

func formatReminder(r Reminder) string {
	if r.TimeLabel != "" {
		return fmt.Sprintf("⏰ 提醒你：%s！(%s)", r.Text, r.TimeLabel)
	}

	return fmt.Sprintf("⏰ 提醒你：%s！", r.Text)
}
