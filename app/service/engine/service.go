package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"xiaoz/app/client/wechat"
	"xiaoz/app/config"
	"xiaoz/app/service/conversation"
	"xiaoz/app/service/memo"
	"xiaoz/app/service/queue"
	"xiaoz/app/service/reminder"

	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const (
	confirmTimeLayout = "2006-01-02 15:04"
	apologyMessage    = "Sorry, I encountered an error processing your request."
)

// Service runs the two control loops: polling the bridge for inbound
// messages and handling queued messages one by one.
type Service struct {
	cfg             *config.Config
	bridgeClient    *wechat.Client
	conversationSvc *conversation.Service
	reminderSvc     *reminder.Service
	memoSvc         *memo.Service
	queueSvc        *queue.Service

	pending *pendingSet
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Service{
		cfg:             cfg,
		bridgeClient:    do.MustInvoke[*wechat.Client](di),
		conversationSvc: do.MustInvoke[*conversation.Service](di),
		reminderSvc:     do.MustInvoke[*reminder.Service](di),
		memoSvc:         do.MustInvoke[*memo.Service](di),
		queueSvc:        do.MustInvoke[*queue.Service](di),
		pending:         newPendingSet(cfg.Reminder.PendingTimeout),
	}, nil
}

func (s *Service) Run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.runPollLoop(ctx)
		return nil
	})

	g.Go(func() error {
		s.runConsumeLoop(ctx)
		return nil
	})

	_ = g.Wait()
}

// runPollLoop fetches new messages from the bridge on every tick, keeps
// the ones addressed to the bot and queues them. A failed fetch only costs
// this tick.
func (s *Service) runPollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Bridge.PollInterval)
	defer ticker.Stop()

	mention := "@" + s.bridgeClient.Nickname()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		newMessages, err := s.bridgeClient.FetchNewMessages(ctx)
		if err != nil {
			slog.Error("Failed to fetch new messages", "error", err)
			continue
		}

		s.enqueueNew(newMessages, mention)
	}
}

// enqueueNew filters a poll result down to text messages addressed to the
// bot, strips the mention and queues the remaining query.
func (s *Service) enqueueNew(newMessages map[string][]wechat.Message, mention string) {
	for sender, messages := range newMessages {
		for _, msg := range messages {
			if msg.Type != "" && msg.Type != "text" {
				continue
			}
			if !strings.HasPrefix(msg.Text, mention) {
				continue
			}

			query := strings.TrimSpace(strings.TrimPrefix(msg.Text, mention))
			s.queueSvc.Add(sender, query)
		}
	}
}

func (s *Service) runConsumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.queueSvc.Channel():
			if !ok {
				return
			}

			start := time.Now()
			if err := s.handleMessage(ctx, msg.Sender, msg.Text); err != nil {
				slog.Warn("handleMessage error", "error", err)
			}

			slog.Info("Processed message",
				"sender", msg.Sender,
				"text", msg.Text,
				"duration", time.Since(start))
		}
	}
}

// handleMessage routes one inbound query: memo commands first, then an
// open reminder confirmation, then fresh reminder detection, and finally
// the normal conversation flow.
func (s *Service) handleMessage(ctx context.Context, sender, text string) error {
	if replies, handled := s.memoSvc.HandleCommand(sender, text); handled {
		return s.sendAll(ctx, sender, replies)
	}

	if entry, ok := s.pending.get(sender); ok {
		return s.handleConfirmation(ctx, sender, text, entry)
	}

	if subject, ok := reminder.DetectIntent(text); ok {
		suggested := reminder.DefaultDueTime(time.Now(), text)
		s.pending.open(sender, subject, suggested)
		return s.askConfirmation(ctx, sender, subject, suggested)
	}

	reply, err := s.conversationSvc.Reply(ctx, sender, text)
	if err != nil {
		slog.Error("Failed to generate reply",
			"sender", sender,
			"text", text,
			"error", err,
		)
		return s.bridgeClient.SendText(ctx, sender, apologyMessage)
	}

	return s.bridgeClient.SendText(ctx, sender, reply)
}

// handleConfirmation advances the yes/no round-trip for a suggested
// reminder time.
func (s *Service) handleConfirmation(ctx context.Context, sender, text string, entry pendingReminder) error {
	if corrected, ok := reminder.ExtractTimeCorrection(time.Now(), entry.Suggested, text); ok {
		s.pending.updateSuggestion(sender, corrected)
		return s.askConfirmation(ctx, sender, entry.Subject, corrected)
	}

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes":
		label := entry.Suggested.Format(confirmTimeLayout)

		if _, err := s.reminderSvc.Add(sender, entry.Subject, entry.Suggested, label); err != nil {
			s.pending.close(sender)
			return s.bridgeClient.SendText(ctx, sender, "⚠️ 你的提醒数量已达上限，请先删除一些旧提醒。")
		}
		s.pending.close(sender)

		return s.bridgeClient.SendText(ctx, sender,
			fmt.Sprintf("好的，我会在 %s 中国时间提醒你%s.", label, entry.Subject))

	case "no":
		return s.bridgeClient.SendText(ctx, sender, "好的，请告诉我您希望的提醒时间（例如：15:30）")

	default:
		return s.bridgeClient.SendText(ctx, sender, "请确认提醒时间或提供新的时间，例如：15:30")
	}
}

func (s *Service) askConfirmation(ctx context.Context, sender, subject string, suggested time.Time) error {
	return s.bridgeClient.SendText(ctx, sender,
		fmt.Sprintf("你希望我在%s中国时间提醒你%s吗？ (yes/no)", suggested.Format(confirmTimeLayout), subject))
}

func (s *Service) sendAll(ctx context.Context, sender string, replies []string) error {
	for _, reply := range replies {
		if err := s.bridgeClient.SendText(ctx, sender, reply); err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}

	return nil
}
