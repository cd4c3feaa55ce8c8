// Package refiner rewrites raw transcripts into structured documents through a
// chat-completion API. The client is best-effort by contract: it errors on any
// problem and leaves the severity decision to the caller.
package refiner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when the API URL or key is missing.
var ErrNotConfigured = errors.New("refiner: API URL or key not configured")

// Config holds the chat-completion endpoint settings.
type Config struct {
	URL         string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Metadata is lightweight audio context included in the system message.
type Metadata struct {
	KindLabel string
	Title     string
	Subject   string
}

// Client calls the chat-completion API. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a refinement client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, logger: logger}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// buildMessages assembles the system message from the prompt and metadata and
// the user message from the raw transcript.
func buildMessages(prompt, raw string, meta Metadata) []message {
	system := strings.TrimSpace(prompt)
	var lines []string
	if meta.KindLabel != "" {
		lines = append(lines, "Document kind: "+meta.KindLabel)
	}
	if meta.Title != "" {
		lines = append(lines, "Title: "+meta.Title)
	}
	if meta.Subject != "" {
		lines = append(lines, "Subject: "+meta.Subject)
	}
	if len(lines) > 0 {
		system = system + "\n\n" + strings.Join(lines, "\n")
	}
	return []message{
		{Role: "system", Content: system},
		{Role: "user", Content: raw},
	}
}

// Refine sends the raw transcript through the chat-completion API and returns
// the rewritten text. Any problem (missing configuration, transport failure,
// bad status, malformed or empty response) is an error.
func (c *Client) Refine(ctx context.Context, prompt, raw string, meta Metadata) (string, error) {
	if c.cfg.URL == "" || c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	payload := completionRequest{
		Model:       c.cfg.Model,
		Messages:    buildMessages(prompt, raw, meta),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("refiner: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("refiner: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("refiner: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("refiner: API returned HTTP %d", resp.StatusCode)
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("refiner: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("refiner: response contains no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("refiner: response text is empty")
	}

	c.logger.Debug("transcript refined", zap.Int("chars", len(text)))
	return text, nil
}
