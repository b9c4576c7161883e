package memo

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"xiaoz/app/config"
	"xiaoz/app/service/reminder"

	"github.com/samber/do"
)

var (
	addRe    = regexp.MustCompile(`^提醒内容：(.*?)\s+提醒时间：(\d{4}/\d{2}/\d{2}\s+\d{2}:\d{2})$`)
	modifyRe = regexp.MustCompile(`^修改提醒\s+(\S+)\s+新提醒内容：(.*?)\s+新提醒时间：(\d{4}/\d{2}/\d{2}\s+\d{2}:\d{2})$`)
)

// Service implements the structured memo command surface on top of the
// reminder store. Adding a reminder is a two-step flow: the user first
// opens memo mode, then submits the reminder in a strict format before the
// pending window expires.
type Service struct {
	cfg   *config.Config
	store *reminder.Service

	mu           sync.Mutex
	pendingUsers map[string]time.Time
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:          do.MustInvoke[*config.Config](di),
		store:        do.MustInvoke[*reminder.Service](di),
		pendingUsers: make(map[string]time.Time),
	}, nil
}

// HandleCommand processes one inbound message (already stripped of the bot
// mention). It returns the replies to send and whether the message matched
// a memo command at all; unmatched messages fall through to the normal
// conversation flow.
func (s *Service) HandleCommand(sender, text string) ([]string, bool) {
	s.cleanupPending(time.Now())

	msg := strings.TrimSpace(text)

	switch {
	case msg == "提醒功能":
		return s.initMemoMode(sender), true

	case msg == "查看提醒":
		return s.listReminders(sender), true

	case strings.HasPrefix(msg, "删除提醒"):
		return s.deleteReminder(sender, msg), true

	case strings.HasPrefix(msg, "修改提醒"):
		return s.modifyReminder(sender, msg), true

	case strings.HasPrefix(msg, "提醒内容："):
		return s.addReminder(sender, msg), true
	}

	return nil, false
}

func (s *Service) initMemoMode(sender string) []string {
	s.mu.Lock()
	s.pendingUsers[sender] = time.Now()
	s.mu.Unlock()

	return []string{fmt.Sprintf(
		"请严格按照以下格式输入你的提醒 (北京时间):\n"+
			"提醒内容：<提醒事项> 提醒时间：YYYY/MM/DD HH:MM\n"+
			"⚠️ 注意：必须在同一条消息中再次 @%s，并且是同一个人填写提醒信息。",
		s.cfg.Bridge.BotName,
	)}
}

func (s *Service) listReminders(sender string) []string {
	reminders := s.store.ListByRecipient(sender)
	if len(reminders) == 0 {
		return []string{"你目前没有设置任何提醒。"}
	}

	var builder strings.Builder
	builder.WriteString("📅 你的提醒：")
	for i, r := range reminders {
		builder.WriteString(fmt.Sprintf("\n%d️⃣ [%s] - %s", i+1, r.Text, r.TimeLabel))
	}

	return []string{builder.String()}
}

func (s *Service) deleteReminder(sender, msg string) []string {
	keyword := strings.TrimSpace(strings.TrimPrefix(msg, "删除提醒"))
	if keyword == "" {
		return []string{"⚠️ 请提供要删除提醒的关键字。"}
	}

	if len(s.store.ListByRecipient(sender)) == 0 {
		return []string{"你目前没有设置任何提醒。"}
	}

	deleted, ok := s.store.DeleteByKeyword(sender, keyword)
	if !ok {
		return []string{"⚠️ 未找到匹配的提醒。"}
	}

	return []string{fmt.Sprintf("🗑 已删除提醒：\"%s\" (%s)", deleted.Text, deleted.TimeLabel)}
}

func (s *Service) modifyReminder(sender, msg string) []string {
	match := modifyRe.FindStringSubmatch(msg)
	if match == nil {
		return []string{
			"⚠️ 格式错误！请使用:\n" +
				"修改提醒 <原提醒关键字> 新提醒内容：<新提醒事项> 新提醒时间：YYYY/MM/DD HH:MM",
		}
	}

	keyword := strings.TrimSpace(match[1])
	newText := strings.TrimSpace(match[2])
	newLabel := strings.TrimSpace(match[3])

	newDueAt, ok := reminder.ParseExplicitTime(newLabel)
	if !ok {
		return []string{"⚠️ 提醒时间格式错误，请使用 YYYY/MM/DD HH:MM 格式。"}
	}
	if newDueAt.Before(time.Now()) {
		return []string{"⚠️ 新提醒时间已过，请设置未来的时间。"}
	}

	if len(s.store.ListByRecipient(sender)) == 0 {
		return []string{"你目前没有设置任何提醒。"}
	}

	previous, ok := s.store.UpdateByKeyword(sender, keyword, newText, newDueAt, newLabel)
	if !ok {
		return []string{"⚠️ 未找到匹配的提醒。"}
	}

	return []string{fmt.Sprintf(
		"✅ 你的提醒已更新！\n旧提醒：\"%s\" (%s)\n新提醒：\"%s\" (%s)",
		previous.Text, previous.TimeLabel, newText, newLabel,
	)}
}

func (s *Service) addReminder(sender, msg string) []string {
	s.mu.Lock()
	_, pending := s.pendingUsers[sender]
	if pending {
		delete(s.pendingUsers, sender)
	}
	s.mu.Unlock()

	if !pending {
		return []string{fmt.Sprintf("⚠️ 你还未初始化提醒功能，请先发送 '@%s 提醒功能'。", s.cfg.Bridge.BotName)}
	}

	match := addRe.FindStringSubmatch(msg)
	if match == nil {
		return []string{
			"⚠️ 格式错误！请严格按照以下格式输入：\n" +
				"提醒内容：<提醒事项> 提醒时间：YYYY/MM/DD HH:MM",
		}
	}

	text := strings.TrimSpace(match[1])
	label := strings.TrimSpace(match[2])

	dueAt, ok := reminder.ParseExplicitTime(label)
	if !ok {
		return []string{"⚠️ 提醒时间格式错误，请使用 YYYY/MM/DD HH:MM 格式。"}
	}
	if dueAt.Before(time.Now()) {
		return []string{"⚠️ 提醒时间已过，请设置未来的时间。"}
	}

	if _, err := s.store.Add(sender, text, dueAt, label); err != nil {
		return []string{"⚠️ 你的提醒数量已达上限，请先删除一些旧提醒。"}
	}

	return []string{"✅ 你的提醒已记录！到时间我会提醒你~"}
}

// cleanupPending drops memo-mode entries older than the pending timeout.
func (s *Service) cleanupPending(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for user, since := range s.pendingUsers {
		if now.Sub(since) > s.cfg.Reminder.PendingTimeout {
			delete(s.pendingUsers, user)
		}
	}
}
