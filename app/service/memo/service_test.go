package memo

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
	"xiaoz/app/client/wechat"
	"xiaoz/app/config"
	"xiaoz/app/service/reminder"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (*Service, *reminder.Service) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Bridge.BotName = "小z"
	cfg.Bridge.BaseURL = "http://127.0.0.1:1"
	cfg.Reminder.PendingTimeout = 2 * time.Minute
	cfg.Reminder.MaxPerUser = 50
	cfg.Reminder.DataFile = filepath.Join(t.TempDir(), "reminders.jsonl")

	di := do.New()
	do.ProvideValue(di, cfg)
	do.Provide(di, wechat.NewClient)
	do.Provide(di, reminder.New)
	do.Provide(di, New)

	return do.MustInvoke[*Service](di), do.MustInvoke[*reminder.Service](di)
}

func futureLabel(t *testing.T) string {
	t.Helper()
	return time.Now().Add(24 * time.Hour).Format("2006/01/02 15:04")
}

func TestNonCommandFallsThrough(t *testing.T) {
	s, _ := testService(t)

	replies, handled := s.HandleCommand("张三", "今天天气怎么样")
	assert.False(t, handled)
	assert.Empty(t, replies)
}

func TestInitMemoMode(t *testing.T) {
	s, _ := testService(t)

	replies, handled := s.HandleCommand("张三", "提醒功能")
	require.True(t, handled)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "提醒内容：<提醒事项> 提醒时间：YYYY/MM/DD HH:MM")
	assert.Contains(t, replies[0], "@小z")
}

func TestAddRequiresMemoMode(t *testing.T) {
	s, store := testService(t)

	replies, handled := s.HandleCommand("张三", fmt.Sprintf("提醒内容：买牛奶 提醒时间：%s", futureLabel(t)))
	require.True(t, handled)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "还未初始化提醒功能")
	assert.Empty(t, store.ListByRecipient("张三"))
}

func TestAddReminderHappyPath(t *testing.T) {
	s, store := testService(t)
	label := futureLabel(t)

	_, handled := s.HandleCommand("张三", "提醒功能")
	require.True(t, handled)

	replies, handled := s.HandleCommand("张三", fmt.Sprintf("提醒内容：买牛奶 提醒时间：%s", label))
	require.True(t, handled)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "✅ 你的提醒已记录")

	reminders := store.ListByRecipient("张三")
	require.Len(t, reminders, 1)
	assert.Equal(t, "买牛奶", reminders[0].Text)
	assert.Equal(t, label, reminders[0].TimeLabel)
}

func TestAddReminderConsumesPendingState(t *testing.T) {
	s, _ := testService(t)
	label := futureLabel(t)

	s.HandleCommand("张三", "提醒功能")
	s.HandleCommand("张三", fmt.Sprintf("提醒内容：买牛奶 提醒时间：%s", label))

	// the pending entry is gone, a second submission needs a new init
	replies, _ := s.HandleCommand("张三", fmt.Sprintf("提醒内容：开会 提醒时间：%s", label))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "还未初始化提醒功能")
}

func TestAddReminderRejectsBadFormat(t *testing.T) {
	s, store := testService(t)

	s.HandleCommand("张三", "提醒功能")
	replies, handled := s.HandleCommand("张三", "提醒内容：买牛奶 明天下午")
	require.True(t, handled)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "格式错误")
	assert.Empty(t, store.ListByRecipient("张三"))
}

func TestAddReminderRejectsPastTime(t *testing.T) {
	s, store := testService(t)

	s.HandleCommand("张三", "提醒功能")
	replies, _ := s.HandleCommand("张三", "提醒内容：买牛奶 提醒时间：2020/01/01 08:00")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "提醒时间已过")
	assert.Empty(t, store.ListByRecipient("张三"))
}

func TestMemoModeExpires(t *testing.T) {
	s, _ := testService(t)

	s.HandleCommand("张三", "提醒功能")

	s.mu.Lock()
	s.pendingUsers["张三"] = time.Now().Add(-3 * time.Minute)
	s.mu.Unlock()

	replies, _ := s.HandleCommand("张三", fmt.Sprintf("提醒内容：买牛奶 提醒时间：%s", futureLabel(t)))
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "还未初始化提醒功能")
}

func TestViewReminders(t *testing.T) {
	s, store := testService(t)

	replies, handled := s.HandleCommand("张三", "查看提醒")
	require.True(t, handled)
	require.Len(t, replies, 1)
	assert.Equal(t, "你目前没有设置任何提醒。", replies[0])

	_, err := store.Add("张三", "买牛奶", time.Now().Add(time.Hour), "2026/03/10 15:00")
	require.NoError(t, err)
	_, err = store.Add("张三", "开会", time.Now().Add(2*time.Hour), "2026/03/10 16:00")
	require.NoError(t, err)

	replies, _ = s.HandleCommand("张三", "查看提醒")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "📅 你的提醒：")
	assert.Contains(t, replies[0], "1️⃣ [买牛奶] - 2026/03/10 15:00")
	assert.Contains(t, replies[0], "2️⃣ [开会] - 2026/03/10 16:00")
}

func TestDeleteReminder(t *testing.T) {
	s, store := testService(t)

	replies, _ := s.HandleCommand("张三", "删除提醒")
	assert.Contains(t, replies[0], "请提供要删除提醒的关键字")

	replies, _ = s.HandleCommand("张三", "删除提醒 牛奶")
	assert.Equal(t, "你目前没有设置任何提醒。", replies[0])

	_, err := store.Add("张三", "买牛奶", time.Now().Add(time.Hour), "2026/03/10 15:00")
	require.NoError(t, err)

	replies, _ = s.HandleCommand("张三", "删除提醒 面包")
	assert.Contains(t, replies[0], "未找到匹配的提醒")

	replies, _ = s.HandleCommand("张三", "删除提醒 牛奶")
	assert.Contains(t, replies[0], "🗑 已删除提醒：\"买牛奶\" (2026/03/10 15:00)")
	assert.Empty(t, store.ListByRecipient("张三"))
}

func TestModifyReminder(t *testing.T) {
	s, store := testService(t)
	label := futureLabel(t)

	replies, handled := s.HandleCommand("张三", "修改提醒 乱写的")
	require.True(t, handled)
	assert.Contains(t, replies[0], "格式错误")

	replies, _ = s.HandleCommand("张三", "修改提醒 牛奶 新提醒内容：买酸奶 新提醒时间：2020/01/01 08:00")
	assert.Contains(t, replies[0], "新提醒时间已过")

	_, err := store.Add("张三", "买牛奶", time.Now().Add(time.Hour), "2026/03/10 15:00")
	require.NoError(t, err)

	replies, _ = s.HandleCommand("张三", fmt.Sprintf("修改提醒 牛奶 新提醒内容：买酸奶 新提醒时间：%s", label))
	assert.Contains(t, replies[0], "✅ 你的提醒已更新")
	assert.Contains(t, replies[0], "旧提醒：\"买牛奶\"")
	assert.Contains(t, replies[0], "新提醒：\"买酸奶\"")

	reminders := store.ListByRecipient("张三")
	require.Len(t, reminders, 1)
	assert.Equal(t, "买酸奶", reminders[0].Text)
}
