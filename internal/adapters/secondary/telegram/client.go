package telegram

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/go-resty/resty/v2"
	telegramPorts "github.com/kpizzy812/TMAMARKET/internal/ports/telegram"
)

const defaultTimeout = 10 * time.Second

var _ telegramPorts.IClient = (*Client)(nil)

// Client Bot API, используется только sendMessage
type Client struct {
	http *resty.Client
	log  *slog.Logger
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	MessageThreadID       *int64 `json:"message_thread_id,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func NewClient(baseURL, token string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetPathParam("token", token).
			SetHeader("Content-Type", "application/json"),
		log: log,
	}
}

func (c *Client) Send(ctx context.Context, msg telegramPorts.Message) error {
	body := sendMessageRequest{
		ChatID:                msg.ChatID,
		Text:                  msg.Text,
		MessageThreadID:       msg.ThreadID,
		DisableWebPagePreview: true,
	}
	if msg.HTML {
		body.ParseMode = "HTML"
	}

	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	if !out.OK {
		c.log.Warn("telegram rejected message",
			"chat_id", msg.ChatID,
			"status_code", resp.StatusCode(),
			"error_code", out.ErrorCode,
			"description", out.Description,
		)
		return fmt.Errorf("telegram API error %d: %s", out.ErrorCode, out.Description)
	}

	c.log.Debug("telegram message sent", "chat_id", msg.ChatID, "message_id", out.Result.MessageID)
	return nil
}
