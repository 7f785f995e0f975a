// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"log/slog"

	"github.com/poiesic/docqa/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// Its embedder is the raw client wrapped in the retry and batching decorators.
type Provider struct {
	config    *ai.Config
	batcher   *ai.BatchEmbedder
	completer *Completer
	logger    *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	completer, err := newCompleter(config)
	if err != nil {
		return nil, err
	}

	var inner ai.Embedder = embedder
	if config.EmbeddingAttempts > 1 {
		inner, err = ai.NewRetryingEmbedder(embedder, config.EmbeddingAttempts, config.RetryDelay)
		if err != nil {
			return nil, err
		}
	}

	batcher, err := ai.NewBatchEmbedder(inner, config)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Debug("provider ready",
		"embedding_host", config.EmbeddingHost,
		"chat_host", config.ChatHost,
		"attempts", config.EmbeddingAttempts,
		"concurrency", config.MaxConcurrentEmbeddings)

	return &Provider{
		config:    config,
		batcher:   batcher,
		completer: completer,
		logger:    logger,
	}, nil
}

// Embedder returns the batched text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.batcher
}

// Completer returns the chat-completion service.
func (p *Provider) Completer() ai.Completer {
	return p.completer
}

// Close releases the embedding worker pool.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return p.batcher.Close()
}
