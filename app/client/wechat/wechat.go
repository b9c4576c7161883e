package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"xiaoz/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
)

const requestTimeout = 10 * time.Second

// memberCountRe matches the trailing member count the desktop client appends
// to group chat names, e.g. "同学群 (3)".
var memberCountRe = regexp.MustCompile(`[\(（]\s*\d+\s*[\)）]`)

// Message is a single inbound text message as reported by the sidecar.
type Message struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Client talks to the local automation sidecar that drives the desktop
// WeChat client. The sidecar owns the actual UI automation; this client
// only polls it for new messages and pushes outgoing texts.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	nickname   string
}

func NewClient(di *do.Injector) (*Client, error) {
	c := &Client{
		cfg: do.MustInvoke[*config.Config](di),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}

	c.nickname = c.fetchNickname()

	return c, nil
}

// fetchNickname asks the sidecar for the logged-in account's nickname.
// The configured bot name covers a sidecar that is not up yet.
func (c *Client) fetchNickname() string {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var payload struct {
		Nickname string `json:"nickname"`
	}

	if err := c.get(ctx, "/api/self", &payload); err != nil || payload.Nickname == "" {
		slog.Warn("Failed to fetch bot nickname from sidecar, using configured name",
			"fallback", c.cfg.Bridge.BotName,
			"error", err,
		)
		return c.cfg.Bridge.BotName
	}

	return payload.Nickname
}

// Nickname returns the bot account's nickname, fetched once at
// construction. Inbound messages must mention @<nickname>.
func (c *Client) Nickname() string {
	return c.nickname
}

// FetchNewMessages returns all messages that arrived since the previous
// call, keyed by sender. Sender names are cleaned of group member counts.
func (c *Client) FetchNewMessages(ctx context.Context) (map[string][]Message, error) {
	var payload struct {
		Messages map[string][]Message `json:"messages"`
	}

	if err := c.get(ctx, "/api/messages/new", &payload); err != nil {
		return nil, oops.Errorf("failed to fetch new messages: %w", err)
	}

	result := make(map[string][]Message, len(payload.Messages))
	for sender, msgs := range payload.Messages {
		cleaned := CleanSender(sender)
		result[cleaned] = append(result[cleaned], msgs...)
	}

	return result, nil
}

// SendText sends a text message to the given chat.
func (c *Client) SendText(ctx context.Context, recipient, text string) error {
	body, err := json.Marshal(map[string]string{
		"to":   recipient,
		"text": text,
	})
	if err != nil {
		return oops.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Bridge.BaseURL+"/api/message/send", bytes.NewReader(body))
	if err != nil {
		return oops.Errorf("failed to create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return oops.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oops.Errorf("sidecar returned %d: %s", resp.StatusCode, string(data))
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Bridge.BaseURL+path, nil)
	if err != nil {
		return oops.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return oops.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oops.Errorf("sidecar returned %d: %s", resp.StatusCode, string(data))
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oops.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// CleanSender strips surrounding whitespace and any trailing member count
// from a sender's name.
func CleanSender(sender string) string {
	cleaned := strings.TrimSpace(sender)
	cleaned = memberCountRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}
