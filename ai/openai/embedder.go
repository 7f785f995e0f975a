package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// It sends exactly the texts it is given in one request. Batching and retry
// are layered on top by the provider.
type Embedder struct {
	embedder embeddings.Embedder
	request  requestOptions
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(cfg *ai.Config) (*Embedder, error) {
	if cfg == nil {
		return nil, ai.ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.EmbeddingHost),
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	// Wrap in langchaingo embedder
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		request:  requestOptions{requestTimeout: cfg.RequestTimeout},
		logger:   slog.Default().With("component", "openai-embedder", "model", cfg.EmbeddingModel),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
// The returned embedder performs a single request per call.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(cfg *ai.Config) (ai.Embedder, error) {
	return newEmbedder(cfg)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	ctx, cancel := e.request.withTimeout(ctx)
	defer cancel()

	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = cleanText(t)
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, cleaned)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbeddingService, len(vectors), len(texts))
	}

	return vectors, nil
}
