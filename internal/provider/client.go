package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"itinerary-planner/internal/models"
	"itinerary-planner/internal/telemetry"
)

const (
	defaultBaseURL   = "https://api.x.ai/v1"
	defaultModel     = "grok-3"
	defaultMaxTokens = 1000
	defaultTimeout   = 60 * time.Second

	// maxEnvelopeBytes bounds how much of a reply body is read.
	maxEnvelopeBytes = 4 << 20
)

// Config configures the chat-completions client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues one chat-completions request per generation. It never retries.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	timeout    time.Duration
	httpClient *http.Client
}

// New builds a client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate asks the provider for an itinerary and returns the raw message content.
func (c *Client) Generate(ctx context.Context, destination string, durationDays int) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, destination, durationDays)
	telemetry.ProviderLatency.WithLabelValues(outcome(err)).Observe(time.Since(start).Seconds())
	return text, err
}

func (c *Client) generate(ctx context.Context, destination string, durationDays int) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: Prompt(destination, durationDays)}},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &models.ProviderError{Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return "", &models.ProviderError{Message: fmt.Sprintf("timeout after %s", c.timeout), Err: context.DeadlineExceeded}
		}
		return "", &models.ProviderError{Message: "transport error", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeBytes))
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return "", &models.ProviderError{Message: fmt.Sprintf("timeout after %s reading body", c.timeout), Err: context.DeadlineExceeded}
		}
		return "", &models.ProviderError{Message: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &models.ProviderError{StatusCode: resp.StatusCode, Message: truncate(strings.TrimSpace(string(body)), 700)}
	}

	var envelope chatResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", &models.ProviderError{Message: "decode response envelope", Err: err}
	}
	if len(envelope.Choices) == 0 || envelope.Choices[0].Message.Content == nil {
		return "", &models.ParseError{Raw: string(body), Err: errors.New("reply has no choices[0].message.content")}
	}
	return *envelope.Choices[0].Message.Content, nil
}

func outcome(err error) string {
	var perr *models.ProviderError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &perr) && perr.Timeout():
		return "timeout"
	case errors.As(err, &perr):
		return "provider_error"
	default:
		return "bad_reply"
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
