// Package completion calls ranked OpenAI-compatible chat completion
// endpoints with failover.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client tries each configured endpoint in order and returns the first
// non-empty answer. One attempt per endpoint, no retries.
type Client struct {
	endpoints   []Endpoint
	temperature float64
	maxTokens   int
	logger      *slog.Logger
	httpClient  *http.Client
}

// NewClient creates a Client over the ordered endpoint list.
func NewClient(log *slog.Logger, endpoints []Endpoint, temperature float64, maxTokens int) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		endpoints:   endpoints,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      log.With(slog.String("service", "completion")),
		httpClient:  &http.Client{},
	}
}

// Endpoints returns the configured endpoint list in failover order.
func (c *Client) Endpoints() []Endpoint {
	return c.endpoints
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete requests a completion from each endpoint in order, returning on
// the first success. When every endpoint fails the error aggregates each
// endpoint's reason tagged by its name.
func (c *Client) Complete(ctx context.Context, messages []Message) (Reply, error) {
	if len(c.endpoints) == 0 {
		return Reply{}, fmt.Errorf("no completion endpoints configured")
	}

	var failures []string
	for _, ep := range c.endpoints {
		text, err := c.complete(ctx, ep, messages)
		if err != nil {
			c.logger.Warn("endpoint failed",
				slog.String("endpoint", ep.Name),
				slog.Any("error", err),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", ep.Name, err))
			continue
		}
		c.logger.Debug("completion ok",
			slog.String("endpoint", ep.Name),
			slog.Int("chars", len(text)),
		)
		return Reply{Text: text, Endpoint: ep}, nil
	}
	return Reply{}, fmt.Errorf("endpoint errors: %s", strings.Join(failures, "; "))
}

func (c *Client) complete(ctx context.Context, ep Endpoint, messages []Message) (string, error) {
	payload := chatRequest{
		Model:       ep.Model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(ep.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(ep.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}

	text, err := extractContent(parsed.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty completion text")
	}
	return text, nil
}

// extractContent accepts both the plain-string content shape and the
// structured parts array some backends return.
func extractContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing message content")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("unrecognized content shape")
	}
	var sb strings.Builder
	for _, part := range parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
