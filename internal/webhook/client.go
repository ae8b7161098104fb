// Package webhook delivers alert text to a chat webhook (Slack-compatible).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender delivers a single message.
type Sender interface {
	// Send performs one delivery attempt. A nil error means the endpoint
	// accepted the message.
	Send(ctx context.Context, text string) error
}

// Message is the JSON body of a webhook POST.
type Message struct {
	Text string `json:"text"`
}

// Client POSTs messages to a fixed URL.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a Client for url. Each attempt is bounded by timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send POSTs {"text": text} once. There is no retry; callers decide when to
// try again.
func (c *Client) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(Message{Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.Code)
}
