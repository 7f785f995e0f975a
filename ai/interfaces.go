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


package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings.
	// The returned slice contains embeddings in the same order as the input texts.
	// Either every vector is returned or an error is; never a partial result.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer generates text with a chat-completion model.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete sends a system prompt and a user message and returns the model's reply.
	// Implementations do not retry.
	Complete(ctx context.Context, system, user string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Completer returns the chat-completion service.
	// The returned Completer is safe for concurrent use.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
