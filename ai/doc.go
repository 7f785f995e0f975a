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


// Package ai provides abstractions for the AI services used by docqa.
//
// This package defines interfaces for text embeddings and chat completion so
// the ingestion and query pipelines depend on abstractions rather than on a
// particular vendor.
//
// # Design Principles
//
// The package is designed around three key interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Completer: Produces an answer from a system prompt and a user message
//   - AIProvider: Aggregates AI services for convenient initialization
//
// Embedders compose. BatchEmbedder splits inputs into bounded batches and runs
// them on a worker pool with optional rate limiting, and RetryingEmbedder
// retries a failed batch with exponential backoff. Retry is opt-in: the
// configured number of attempts decides whether the decorator is installed.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// interface types. Test utility constructors (mock.NewMockEmbedder,
// mock.NewMockCompleter) return concrete types so tests can inject behavior and
// inspect call counts.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"roof pitch 6/12"})
//	reply, err := provider.Completer().Complete(ctx, systemPrompt, userPrompt)
package ai
