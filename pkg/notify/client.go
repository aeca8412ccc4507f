// Package notify posts plain-text messages to a chat through an incoming
// webhook.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/logging"
)

// DefaultTimeout is the maximum time to wait for the webhook.
const DefaultTimeout = 10 * time.Second

// Message is the webhook body. Content is itself a JSON document.
type Message struct {
	ReceiveID string `json:"receive_id"`
	MsgType   string `json:"msg_type"`
	Content   string `json:"content"`
}

type textContent struct {
	Text string `json:"text"`
}

// Client sends chat messages to a webhook.
type Client struct {
	webhookURL string
	client     *resty.Client
	logger     *zap.Logger
}

// NewClient creates a webhook client. token, when set, is sent as a bearer
// token on every request.
func NewClient(webhookURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &Client{
		webhookURL: webhookURL,
		client:     client,
		logger:     logger.Named("notify"),
	}
}

// NotifyText posts text to chatID.
func (c *Client) NotifyText(ctx context.Context, chatID, text string) error {
	content, err := json.Marshal(textContent{Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}

	msg := Message{
		ReceiveID: chatID,
		MsgType:   "text",
		Content:   string(content),
	}

	c.logger.Debug("Posting chat notification", zap.String("chat_id", chatID))

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %s", logging.SanitizeError(err))
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		c.logger.Error("Webhook returned error",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
