package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/zhouzirui/news-agent/backend/internal/config"
	"github.com/zhouzirui/news-agent/backend/internal/logger"
	"github.com/zhouzirui/news-agent/backend/internal/model/chat"
)

const target = "webhook"

// Request is the body posted to the workflow webhook for each turn.
type Request struct {
	SessionID string `json:"sessionId"`
	ChatInput string `json:"chatInput"`
}

// Client posts chat turns to the workflow webhook.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient builds a client. A zero cfg.Timeout leaves the call unbounded.
func NewClient(cfg config.WebhookConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{url: cfg.URL, httpClient: httpClient}
}

// Send forwards one user message and returns the workflow's "output" text.
func (c *Client) Send(ctx context.Context, sessionID, userMessage, authToken string) (string, error) {
	payload, err := json.Marshal(Request{SessionID: sessionID, ChatInput: userMessage})
	if err != nil {
		return "", fmt.Errorf("encode webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", &chat.CallFailure{Target: target, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &chat.CallFailure{Target: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &chat.CallFailure{Target: target, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &chat.CallFailure{
			Target: target,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), c.url),
		}
	}

	output, err := decodeOutput(body)
	if err != nil {
		return "", &chat.CallFailure{Target: target, Status: resp.StatusCode, Err: err}
	}

	logger.Debug("webhook replied", "session_id", sessionID, "length", len(output))
	return output, nil
}

func decodeOutput(body []byte) (string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	raw, ok := envelope["output"]
	if !ok || string(raw) == "null" {
		return "", errors.New(`response has no "output" field`)
	}

	var output string
	if err := json.Unmarshal(raw, &output); err != nil {
		return "", errors.New(`response "output" is not a string`)
	}
	return output, nil
}
