package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"xiaoz/app/config"
	"xiaoz/app/service/agent"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

const (
	maxReasonDuration = 30 * time.Second
	replyTemperature  = 0.7
	replyMaxTokens    = 200

	summaryTemperature = 0.5
	summaryMaxTokens   = 200

	summaryPrompt     = "这是我们之前的对话记录，请总结我们的对话历史（字数不要太多）：\n"
	lengthInstruction = "回复消息字数小于250字"
)

type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service keeps the conversational context window and produces replies
// through the completion API, or through the tool-calling agent when MCP
// servers are configured.
type Service struct {
	cfg      *config.Config
	agentSvc *agent.Service

	replyClient   completer
	summaryClient completer

	mu      sync.Mutex
	window  *window
	summary string
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Service{
		cfg:           cfg,
		agentSvc:      do.MustInvoke[*agent.Service](di),
		replyClient:   createClient(cfg.OpenAI.Reply),
		summaryClient: createClient(cfg.OpenAI.Summary),
		window:        newWindow(cfg.Chat.MaxRounds * 2),
	}, nil
}

// Reply appends the user turn to the window, generates the assistant reply
// from the rendered context and records it. The returned reply is already
// truncated to the configured length.
func (s *Service) Reply(ctx context.Context, sender, text string) (string, error) {
	s.mu.Lock()
	s.window.add(RoleUser, text)
	s.mu.Unlock()

	s.refreshSummary(ctx)

	reply, err := s.generate(ctx, sender)
	if err != nil {
		return "", err
	}

	reply = truncate(reply, s.cfg.Chat.MaxReplyLength)

	s.mu.Lock()
	s.window.add(RoleAssistant, reply)
	s.mu.Unlock()

	s.saveHistoryLog()

	return reply, nil
}

func (s *Service) generate(ctx context.Context, sender string) (string, error) {
	messages := s.buildMessages()

	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	if s.agentSvc != nil && s.agentSvc.Enabled() {
		reply, err := s.agentSvc.Answer(ctx, sender, flatten(messages))
		if err != nil {
			return "", fmt.Errorf("agent answer failed: %w", err)
		}
		return strings.TrimSpace(reply), nil
	}

	aiResponse, err := s.replyClient.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       s.cfg.OpenAI.Reply.Model,
			Messages:    messages,
			Temperature: replyTemperature,
			MaxTokens:   replyMaxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return "", fmt.Errorf("no chat completion found")
	}

	return strings.TrimSpace(aiResponse.Choices[0].Message.Content), nil
}

// flatten renders the chat messages as one prompt string for the agent
// executor, which takes a single input.
func flatten(messages []openai.ChatCompletionMessage) string {
	var builder strings.Builder

	for _, msg := range messages {
		builder.WriteString(msg.Role)
		builder.WriteString("：")
		builder.WriteString(msg.Content)
		builder.WriteString("\n")
	}

	return builder.String()
}

// buildMessages assembles the prompt: system prompt, optional summary of
// older turns, the recent turns verbatim and a final length instruction.
func (s *Service) buildMessages() []openai.ChatCompletionMessage {
	s.mu.Lock()
	summary := s.summary

	var recent []Turn
	if summary != "" {
		recent = s.window.last(s.cfg.Chat.SummaryRecentRounds * 2)
	} else {
		recent = s.window.all()
	}
	recent = append([]Turn(nil), recent...)
	s.mu.Unlock()

	messages := make([]openai.ChatCompletionMessage, 0, len(recent)+3)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.cfg.Chat.SystemPrompt,
	})

	if summary != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "对话摘要：" + summary,
		})
	}

	for _, turn := range recent {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Text,
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: lengthInstruction,
	})

	return messages
}

// refreshSummary condenses older turns into a single summary string once
// the window outgrows the threshold. Failures only cost the summary, never
// the reply.
func (s *Service) refreshSummary(ctx context.Context) {
	s.mu.Lock()
	threshold := s.cfg.Chat.SummaryThresholdRounds * 2
	recentCount := s.cfg.Chat.SummaryRecentRounds * 2

	if s.window.len() <= threshold {
		s.mu.Unlock()
		return
	}
	older := append([]Turn(nil), s.window.olderThan(recentCount)...)
	s.mu.Unlock()

	if len(older) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	aiResponse, err := s.summaryClient.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: s.cfg.OpenAI.Summary.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: summaryPrompt + render(older),
				},
			},
			Temperature: summaryTemperature,
			MaxTokens:   summaryMaxTokens,
		},
	)
	if err != nil {
		slog.Warn("Failed to summarize conversation history", "error", err)
		return
	}

	if len(aiResponse.Choices) == 0 {
		return
	}

	summary := strings.TrimSpace(aiResponse.Choices[0].Message.Content)
	if summary == "" {
		return
	}

	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()

	slog.Debug("Refreshed conversation summary", "turns", len(older))
}

// saveHistoryLog dumps the current window to disk for inspection. Best
// effort only.
func (s *Service) saveHistoryLog() {
	s.mu.Lock()
	turns := append([]Turn(nil), s.window.all()...)
	s.mu.Unlock()

	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		slog.Warn("Failed to marshal conversation history", "error", err)
		return
	}

	path := s.cfg.Chat.HistoryLogFile
	_ = os.MkdirAll(filepath.Dir(path), 0755)

	if err = os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("Failed to save conversation history", "error", err)
	}
}

func truncate(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	return string(runes[:maxLength]) + "..."
}
