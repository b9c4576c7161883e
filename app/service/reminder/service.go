package reminder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"xiaoz/app/client/wechat"
	"xiaoz/app/config"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	"github.com/samber/do"
)

var ErrTooManyReminders = fmt.Errorf("too many reminders for this recipient")

// Service is the shared reminder store. The message handler inserts and
// edits reminders, the poll loop takes due ones out; every operation runs
// under a single mutex. The store is mirrored to a JSONL file so pending
// reminders survive a restart.
type Service struct {
	cfg    *config.Config
	sender Sender

	mu        sync.Mutex
	reminders []Reminder
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	s := &Service{
		cfg:    cfg,
		sender: do.MustInvoke[*wechat.Client](di),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load reminder store: %w", err)
	}

	return s, nil
}

// Add stores a new reminder and returns it. The per-recipient cap is
// enforced here.
func (s *Service) Add(recipient, text string, dueAt time.Time, timeLabel string) (Reminder, error) {
	r := Reminder{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Text:      text,
		DueAt:     dueAt,
		TimeLabel: timeLabel,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(pie.Filter(s.reminders, func(existing Reminder) bool {
		return existing.Recipient == recipient
	}))
	if count >= s.cfg.Reminder.MaxPerUser {
		return Reminder{}, ErrTooManyReminders
	}

	s.reminders = append(s.reminders, r)
	s.persistLocked()

	slog.Info("Reminder added",
		"recipient", recipient,
		"due_at", dueAt,
	)

	return r, nil
}

// ListByRecipient returns the recipient's pending reminders in insertion
// order.
func (s *Service) ListByRecipient(recipient string) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	return pie.Filter(s.reminders, func(r Reminder) bool {
		return r.Recipient == recipient
	})
}

// DeleteByKeyword removes the recipient's first reminder whose text
// contains the keyword and returns it.
func (s *Service) DeleteByKeyword(recipient, keyword string) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := pie.FindFirstUsing(s.reminders, func(r Reminder) bool {
		return r.Recipient == recipient && strings.Contains(r.Text, keyword)
	})
	if idx < 0 {
		return Reminder{}, false
	}

	deleted := s.reminders[idx]
	s.reminders = append(s.reminders[:idx], s.reminders[idx+1:]...)
	s.persistLocked()

	return deleted, true
}

// UpdateByKeyword rewrites the recipient's first reminder whose text
// contains the keyword and returns its previous version.
func (s *Service) UpdateByKeyword(recipient, keyword, newText string, newDueAt time.Time, newTimeLabel string) (Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := pie.FindFirstUsing(s.reminders, func(r Reminder) bool {
		return r.Recipient == recipient && strings.Contains(r.Text, keyword)
	})
	if idx < 0 {
		return Reminder{}, false
	}

	previous := s.reminders[idx]
	s.reminders[idx].Text = newText
	s.reminders[idx].DueAt = newDueAt
	s.reminders[idx].TimeLabel = newTimeLabel
	s.persistLocked()

	return previous, true
}

// TakeDue removes and returns every reminder due at or before now. Removal
// happens under the lock, so a reminder can be returned at most once no
// matter how often the poller ticks.
func (s *Service) TakeDue(now time.Time) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due, rest []Reminder
	for _, r := range s.reminders {
		if !r.DueAt.After(now) {
			due = append(due, r)
		} else {
			rest = append(rest, r)
		}
	}

	if len(due) == 0 {
		return nil
	}

	s.reminders = rest
	s.persistLocked()

	return due
}

func (s *Service) load() error {
	file, err := os.OpenFile(s.cfg.Reminder.DataFile, os.O_RDONLY, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open reminder file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var r Reminder
		if err = json.Unmarshal([]byte(line), &r); err != nil {
			return fmt.Errorf("failed to parse JSON line: %w", err)
		}

		s.reminders = append(s.reminders, r)
	}

	if err = scanner.Err(); err != nil {
		return fmt.Errorf("error reading reminder file: %w", err)
	}

	return nil
}

// persistLocked rewrites the JSONL mirror. Failures are logged and the
// in-memory store stays authoritative.
func (s *Service) persistLocked() {
	path := s.cfg.Reminder.DataFile
	_ = os.MkdirAll(filepath.Dir(path), 0755)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		slog.Warn("Failed to open reminder file", "error", err)
		return
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	for _, r := range s.reminders {
		data, err := json.Marshal(r)
		if err != nil {
			slog.Warn("Failed to marshal reminder", "error", err)
			return
		}
		if _, err = writer.WriteString(string(data) + "\n"); err != nil {
			slog.Warn("Failed to write reminder", "error", err)
			return
		}
	}

	if err = writer.Flush(); err != nil {
		slog.Warn("Failed to flush reminder file", "error", err)
	}
}
