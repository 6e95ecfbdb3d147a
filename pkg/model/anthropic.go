package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	DefaultAnthropicBaseURL = "https://api.anthropic.com/v1/messages"
	maxResponseBytes        = 10 * 1024 * 1024
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicConfig configures the Messages API adapter.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Anthropic generates text through the Messages API.
type Anthropic struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	logger     *slog.Logger
}

// NewAnthropic creates an adapter for cfg.Model.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic: model name required")
	}
	a := &Anthropic{
		httpClient: cfg.HTTPClient,
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		logger:     cfg.Logger,
	}
	if a.httpClient == nil {
		a.httpClient = &http.Client{}
	}
	if a.baseURL == "" {
		a.baseURL = DefaultAnthropicBaseURL
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a, nil
}

func (a *Anthropic) Name() string { return "anthropic:" + a.model }

// Generate implements Adapter.
func (a *Anthropic) Generate(ctx context.Context, prompt string, c Constraints) (string, error) {
	payload := anthropicRequest{
		Model:     a.model,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		System:    c.System,
		MaxTokens: c.MaxTokens,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = DefaultConstraints().MaxTokens
	}
	temp := c.Temperature
	payload.Temperature = &temp

	body, err := json.Marshal(payload)
	if err != nil {
		return "", a.fail(0, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", a.fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	a.logger.Debug("anthropic request", "model", a.model, "prompt_chars", len(prompt))
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", a.fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", a.fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	var apiResp anthropicResponse
	decodeErr := json.Unmarshal(respBody, &apiResp)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && apiResp.Error != nil {
			msg = apiResp.Error.Type + ": " + apiResp.Error.Message
		}
		return "", a.fail(resp.StatusCode, errors.New(msg))
	}
	if decodeErr != nil {
		return "", a.fail(resp.StatusCode, fmt.Errorf("parse response: %w", decodeErr))
	}
	if apiResp.Error != nil {
		return "", a.fail(resp.StatusCode, fmt.Errorf("%s: %s", apiResp.Error.Type, apiResp.Error.Message))
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", a.fail(resp.StatusCode, errors.New("response contained no text block"))
	}
	return text.String(), nil
}

func (a *Anthropic) fail(status int, err error) error {
	return &ProviderError{
		Provider:   a.Name(),
		Op:         "messages",
		StatusCode: status,
		Timeout:    errors.Is(err, context.DeadlineExceeded),
		Err:        err,
	}
}
