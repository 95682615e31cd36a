package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-signals/internal/config"
	"polymarket-signals/pkg/types"
)

// LogChannel writes alerts to the structured logger. Always available,
// used as the default/fallback channel.
type LogChannel struct {
	log *slog.Logger
}

// NewLogChannel builds the log driver.
func NewLogChannel(log *slog.Logger) *LogChannel {
	return &LogChannel{log: log.With("component", "alerts.log")}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(_ context.Context, formatted string, evt types.SignalEvent) error {
	c.log.Info("alert", "signal_type", evt.SignalType, "severity", evt.Severity, "message", formatted)
	return nil
}

// SlackChannel posts a JSON payload to an incoming webhook URL.
type SlackChannel struct {
	client     *resty.Client
	webhookURL string
}

// NewSlackChannel builds the Slack webhook driver.
func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		client:     resty.New().SetTimeout(5 * time.Second),
		webhookURL: webhookURL,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, formatted string, _ types.SignalEvent) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": formatted}).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("slack webhook post: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("slack webhook status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// TelegramChannel posts a message through the bot API's sendMessage call.
type TelegramChannel struct {
	client *resty.Client
	chatID string
}

// NewTelegramChannel builds the Telegram bot driver.
func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		client: resty.New().
			SetBaseURL("https://api.telegram.org/bot"+botToken).
			SetTimeout(5 * time.Second),
		chatID: chatID,
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, formatted string, _ types.SignalEvent) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": c.chatID, "text": formatted}).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("telegram sendMessage status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// EmailChannel sends a plaintext message over SMTP. Uses net/smtp rather
// than a third-party client: none of the corpus repos import a mail
// library, and the platform only ever sends small, low-volume plaintext
// notices — no templating, attachments, or connection pooling is needed.
type EmailChannel struct {
	cfg config.SMTPConfig
}

// NewEmailChannel builds the SMTP driver.
func NewEmailChannel(cfg config.SMTPConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, formatted string, evt types.SignalEvent) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	subject := fmt.Sprintf("[%s] severity %d", evt.SignalType, evt.Severity)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		c.cfg.From, c.cfg.To, subject, formatted)
	if err := smtp.SendMail(addr, nil, c.cfg.From, []string{c.cfg.To}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
