package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAI-compatible chat completion adapter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *slog.Logger
}

// OpenAI generates text through the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates an adapter for cfg.Model.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key not configured")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model name required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

func (o *OpenAI) Name() string { return "openai:" + o.model }

// Generate implements Adapter.
func (o *OpenAI) Generate(ctx context.Context, prompt string, c Constraints) (string, error) {
	var messages []openai.ChatCompletionMessage
	if c.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: c.Temperature,
	}
	if c.MaxTokens > 0 {
		req.MaxCompletionTokens = c.MaxTokens
	}

	o.logger.Debug("openai request", "model", o.model, "prompt_chars", len(prompt))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		pe := &ProviderError{Provider: o.Name(), Op: "chat completion", Err: err,
			Timeout: errors.Is(err, context.DeadlineExceeded)}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			pe.StatusCode = apiErr.HTTPStatusCode
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && pe.StatusCode == 0 {
			pe.StatusCode = reqErr.HTTPStatusCode
		}
		return "", pe
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: o.Name(), Op: "chat completion", Err: errors.New("no choices returned")}
	}
	o.logger.Debug("openai response", "model", o.model, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
