package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      Log       `yaml:"log"`
	OpenAI   OpenAI    `yaml:"openai"`
	Bridge   Bridge    `yaml:"bridge"`
	Chat     Chat      `yaml:"chat"`
	Reminder Reminder  `yaml:"reminder"`
	MCP      []MCPItem `yaml:"mcp"`
}

type OpenAI struct {
	Reply   ModelConfig `yaml:"reply" validate:"required"`
	Summary ModelConfig `yaml:"summary" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://api.siliconflow.cn/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"deepseek-ai/DeepSeek-V3" validate:"required"`
}

type Bridge struct {
	// Base url of the local WeChat automation sidecar
	BaseURL string `yaml:"base_url" example:"http://127.0.0.1:19088" validate:"required"`
	// Nickname of the bot account, used when the sidecar cannot report it
	BotName string `yaml:"bot_name" example:"小z" validate:"required"`
	// How often to poll the sidecar for new messages
	PollInterval time.Duration `yaml:"poll_interval" example:"1s"`
}

type Chat struct {
	// System role prompt for the reply model
	SystemPrompt string `yaml:"system_prompt" validate:"required"`
	// Rounds of user/assistant messages kept in the context window
	MaxRounds int `yaml:"max_rounds" example:"15"`
	// Replies longer than this are truncated
	MaxReplyLength int `yaml:"max_reply_length" example:"300"`
	// Summarize older history once it exceeds this many rounds
	SummaryThresholdRounds int `yaml:"summary_threshold_rounds" example:"5"`
	// Rounds kept verbatim after the summary
	SummaryRecentRounds int `yaml:"summary_recent_rounds" example:"2"`
	// File the conversation window is dumped to after each reply
	HistoryLogFile string `yaml:"history_log_file" example:"data/conversation_history.json"`
}

type Reminder struct {
	// How often the poller checks for due reminders
	PollInterval time.Duration `yaml:"poll_interval" example:"10s"`
	// How long a memo-mode or confirmation request stays open
	PendingTimeout time.Duration `yaml:"pending_timeout" example:"2m"`
	// Cap on stored reminders per recipient
	MaxPerUser int `yaml:"max_per_user" example:"50"`
	// JSONL file pending reminders persist to
	DataFile string `yaml:"data_file" example:"data/reminders.jsonl"`
}

type MCPItem struct {
	// Name prefix for the server's tools
	Name string `yaml:"name" example:"memory" validate:"required"`
	// Command that starts the stdio MCP server
	Command string `yaml:"command" example:"docker" validate:"required"`
	// Arguments for the command
	Args []string `yaml:"args"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	result.applyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func (c *Config) applyDefaults() {
	if c.Bridge.PollInterval <= 0 {
		c.Bridge.PollInterval = time.Second
	}
	if c.Chat.MaxRounds <= 0 {
		c.Chat.MaxRounds = 15
	}
	if c.Chat.MaxReplyLength <= 0 {
		c.Chat.MaxReplyLength = 300
	}
	if c.Chat.SummaryThresholdRounds <= 0 {
		c.Chat.SummaryThresholdRounds = 5
	}
	if c.Chat.SummaryRecentRounds <= 0 {
		c.Chat.SummaryRecentRounds = 2
	}
	if c.Chat.HistoryLogFile == "" {
		c.Chat.HistoryLogFile = "data/conversation_history.json"
	}
	if c.Reminder.PollInterval <= 0 {
		c.Reminder.PollInterval = 10 * time.Second
	}
	if c.Reminder.PendingTimeout <= 0 {
		c.Reminder.PendingTimeout = 2 * time.Minute
	}
	if c.Reminder.MaxPerUser <= 0 {
		c.Reminder.MaxPerUser = 50
	}
	if c.Reminder.DataFile == "" {
		c.Reminder.DataFile = "data/reminders.jsonl"
	}
}
