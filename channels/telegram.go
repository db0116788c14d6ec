package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// TelegramConfig is the per-channel config for a Telegram bot connection.
type TelegramConfig struct {
	// BotToken is the Telegram bot API token (from @BotFather), normally
	// sourced from the TELEGRAM_TOKEN environment variable.
	BotToken string `json:"bot_token"`
}

const telegramAPIBase = "https://api.telegram.org/bot"

// TelegramFactory returns a ChannelFactory for Telegram bot-API
// connections. Only outbound delivery (Send) is wired; inbound updates are
// the chat layer's concern and are out of scope here (§1).
//
// Config example:
//
//	{"bot_token": "123456:ABC-DEF"}
func TelegramFactory() ChannelFactory {
	return func(name string, config json.RawMessage) (Channel, error) {
		var cfg TelegramConfig
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("telegram: parse config: %w", err)
		}
		if cfg.BotToken == "" {
			return nil, fmt.Errorf("telegram: bot_token is required")
		}
		return NewTelegramChannel(name, cfg), nil
	}
}

// telegramChannel implements Channel against the Telegram bot API.
type telegramChannel struct {
	name   string
	config TelegramConfig
	client *http.Client

	mu      sync.Mutex
	closed  bool
	status  ChannelStatus
	closeCh chan struct{}
}

// NewTelegramChannel constructs a Telegram channel directly (bypassing the
// factory's JSON config parsing), the shape the engine wires at startup
// with the token read from TELEGRAM_TOKEN.
func NewTelegramChannel(name string, cfg TelegramConfig) Channel {
	return &telegramChannel{
		name:   name,
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		status: ChannelStatus{
			Connected: true,
			Platform:  "telegram",
			AuthState: "token_valid",
		},
		closeCh: make(chan struct{}),
	}
}

// Listen is a no-op stream for this channel: inbound command routing is
// the chat layer's responsibility (§1), not the engine's. The returned
// channel only closes on ctx cancellation or Close.
func (c *telegramChannel) Listen(ctx context.Context) <-chan Message {
	ch := make(chan Message)
	go func() {
		defer close(ch)
		select {
		case <-ctx.Done():
		case <-c.closeCh:
		}
	}()
	return ch
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type telegramAPIResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send delivers msg via the Telegram bot API's sendMessage method.
func (c *telegramChannel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ErrSendFailed{Channel: c.name, Platform: "telegram",
			Cause: fmt.Errorf("channel closed")}
	}
	c.mu.Unlock()

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    msg.RecipientID,
		Text:      msg.Text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return &ErrSendFailed{Channel: c.name, Platform: "telegram", Cause: err}
	}

	url := telegramAPIBase + c.config.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &ErrSendFailed{Channel: c.name, Platform: "telegram", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &ErrSendFailed{Channel: c.name, Platform: "telegram", Cause: err}
	}
	defer resp.Body.Close()

	var apiResp telegramAPIResponse
	_ = json.NewDecoder(resp.Body).Decode(&apiResp)
	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		return &ErrSendFailed{Channel: c.name, Platform: "telegram",
			Cause: fmt.Errorf("telegram API: %s (status %d)", apiResp.Description, resp.StatusCode)}
	}

	c.mu.Lock()
	c.status.LastMessage = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *telegramChannel) Status() ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *telegramChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.status.Connected = false
	c.status.AuthState = "disconnected"
	return nil
}
