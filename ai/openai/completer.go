package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	request     requestOptions
	logger      *slog.Logger
}

// newCompleter is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newCompleter(cfg *ai.Config) (*Completer, error) {
	if cfg == nil {
		return nil, ai.ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.ChatHost),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Completer{
		client:      client,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		request:     requestOptions{requestTimeout: cfg.RequestTimeout},
		logger:      slog.Default().With("component", "openai-completer", "model", cfg.ChatModel),
	}, nil
}

// NewCompleter creates a new chat completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(cfg *ai.Config) (ai.Completer, error) {
	return newCompleter(cfg)
}

// Complete sends one system and one user message and returns the first choice.
// Upstream failures and timeouts are reported as core.ErrSynthesisService.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := c.request.withTimeout(ctx)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(cleanText(user))},
		},
	}

	response, err := c.client.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return "", fmt.Errorf("%w: %w", core.ErrSynthesisService, err)
	}

	if len(response.Choices) < 1 {
		c.logger.Warn("no choices returned from model")
		return "", fmt.Errorf("%w: model returned no choices", core.ErrSynthesisService)
	}

	text := strings.TrimSpace(response.Choices[0].Content)
	c.logger.Debug("completion received", "length", len(text), "stop_reason", response.Choices[0].StopReason)
	return text, nil
}
