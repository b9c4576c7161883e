package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"xiaoz/app/config"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply    string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)

	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}

	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
	}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Chat.SystemPrompt = "你是小z"
	cfg.Chat.MaxRounds = 15
	cfg.Chat.MaxReplyLength = 300
	cfg.Chat.SummaryThresholdRounds = 5
	cfg.Chat.SummaryRecentRounds = 2
	cfg.Chat.HistoryLogFile = filepath.Join(t.TempDir(), "history.json")
	cfg.OpenAI.Reply.Model = "test-reply"
	cfg.OpenAI.Summary.Model = "test-summary"

	return cfg
}

func testService(cfg *config.Config, replyClient, summaryClient completer) *Service {
	return &Service{
		cfg:           cfg,
		replyClient:   replyClient,
		summaryClient: summaryClient,
		window:        newWindow(cfg.Chat.MaxRounds * 2),
	}
}

func TestReplyRecordsBothTurns(t *testing.T) {
	cfg := testConfig(t)
	replyClient := &fakeCompleter{reply: "  你好呀  "}
	s := testService(cfg, replyClient, &fakeCompleter{reply: "summary"})

	reply, err := s.Reply(context.Background(), "someone", "你好")
	require.NoError(t, err)
	assert.Equal(t, "你好呀", reply)

	turns := s.window.all()
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, "你好", turns[0].Text)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, "你好呀", turns[1].Text)
}

func TestReplyBuildsSystemFramedPrompt(t *testing.T) {
	cfg := testConfig(t)
	replyClient := &fakeCompleter{reply: "ok"}
	s := testService(cfg, replyClient, &fakeCompleter{reply: "summary"})

	_, err := s.Reply(context.Background(), "someone", "你好")
	require.NoError(t, err)

	require.Len(t, replyClient.requests, 1)
	messages := replyClient.requests[0].Messages

	require.GreaterOrEqual(t, len(messages), 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[0].Role)
	assert.Equal(t, "你是小z", messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleSystem, messages[len(messages)-1].Role)
	assert.Equal(t, lengthInstruction, messages[len(messages)-1].Content)
}

func TestReplyTruncatesLongReplies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chat.MaxReplyLength = 10

	long := strings.Repeat("啊", 50)
	s := testService(cfg, &fakeCompleter{reply: long}, &fakeCompleter{reply: ""})

	reply, err := s.Reply(context.Background(), "someone", "讲个故事")
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("啊", 10)+"...", reply)
}

func TestReplySurfacesCompletionFailure(t *testing.T) {
	cfg := testConfig(t)
	s := testService(cfg, &fakeCompleter{err: fmt.Errorf("rate limited")}, &fakeCompleter{reply: ""})

	_, err := s.Reply(context.Background(), "someone", "你好")
	require.Error(t, err)

	// the user turn stays so the next attempt still has it in context
	assert.Equal(t, 1, s.window.len())
}

func TestSummaryRefreshAboveThreshold(t *testing.T) {
	cfg := testConfig(t)
	replyClient := &fakeCompleter{reply: "ok"}
	summaryClient := &fakeCompleter{reply: "我们聊了很多"}
	s := testService(cfg, replyClient, summaryClient)

	// fill the window past the summarization threshold
	for i := 0; i < cfg.Chat.SummaryThresholdRounds*2+2; i++ {
		s.window.add(RoleUser, fmt.Sprintf("消息 %d", i))
	}

	_, err := s.Reply(context.Background(), "someone", "继续")
	require.NoError(t, err)

	assert.NotEmpty(t, summaryClient.requests)
	assert.Equal(t, "我们聊了很多", s.summary)

	// the reply prompt should carry the summary as a system message
	found := false
	for _, msg := range replyClient.requests[0].Messages {
		if msg.Role == openai.ChatMessageRoleSystem && strings.Contains(msg.Content, "我们聊了很多") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSummaryFailureDoesNotBreakReply(t *testing.T) {
	cfg := testConfig(t)
	s := testService(cfg, &fakeCompleter{reply: "ok"}, &fakeCompleter{err: fmt.Errorf("boom")})

	for i := 0; i < cfg.Chat.SummaryThresholdRounds*2+2; i++ {
		s.window.add(RoleUser, fmt.Sprintf("消息 %d", i))
	}

	reply, err := s.Reply(context.Background(), "someone", "继续")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Empty(t, s.summary)
}

func TestSummaryNotTriggeredBelowThreshold(t *testing.T) {
	cfg := testConfig(t)
	summaryClient := &fakeCompleter{reply: "unused"}
	s := testService(cfg, &fakeCompleter{reply: "ok"}, summaryClient)

	_, err := s.Reply(context.Background(), "someone", "你好")
	require.NoError(t, err)

	assert.Empty(t, summaryClient.requests)
	assert.Empty(t, s.summary)
}
