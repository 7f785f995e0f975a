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

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
// It is passed explicitly to provider constructors; nothing in this package
// reads the environment.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// ChatHost is the base URL for the chat-completion service API.
	ChatHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "nomic-embed-text", "text-embedding-3-small"
	EmbeddingModel string

	// ChatModel is the model identifier used for answer synthesis.
	// Example: "llama3.1", "gpt-4o-mini"
	ChatModel string

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string

	// Temperature is the sampling temperature for answer synthesis.
	Temperature float64

	// MaxTokens caps the length of a synthesized answer.
	MaxTokens int

	// EmbeddingBatchSize is the maximum number of texts sent in one embedding request.
	EmbeddingBatchSize int

	// MaxConcurrentEmbeddings bounds the number of in-flight embedding requests.
	// Excess batches queue.
	MaxConcurrentEmbeddings int

	// RequestsPerSecond throttles embedding requests. Zero disables throttling.
	RequestsPerSecond float64

	// EmbeddingAttempts is the number of attempts per embedding batch.
	// One disables retries.
	EmbeddingAttempts int

	// RetryDelay is the base delay for exponential backoff between attempts.
	RetryDelay time.Duration

	// RequestTimeout bounds a single upstream call. Zero disables the timeout.
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithChatHost sets the chat service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithHost sets both embedding and chat hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ChatHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithTemperature sets the synthesis temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxTokens sets the maximum answer length in tokens.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// WithEmbeddingBatchSize sets the maximum number of texts per embedding request.
func WithEmbeddingBatchSize(n int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingBatchSize = n
	}
}

// WithMaxConcurrentEmbeddings sets the in-flight embedding request limit.
func WithMaxConcurrentEmbeddings(n int) ConfigOption {
	return func(c *Config) {
		c.MaxConcurrentEmbeddings = n
	}
}

// WithRequestsPerSecond sets the embedding request rate limit.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// WithEmbeddingRetry sets the attempts per embedding batch and the base backoff delay.
func WithEmbeddingRetry(attempts int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAttempts = attempts
		c.RetryDelay = delay
	}
}

// WithRequestTimeout sets the per-call timeout for upstream requests.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and chat use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:           defaultHost,
		ChatHost:                defaultHost,
		EmbeddingModel:          "nomic-embed-text",
		ChatModel:               "llama3.1",
		APIKey:                  "none",
		Temperature:             0.1,
		MaxTokens:               4096,
		EmbeddingBatchSize:      10,
		MaxConcurrentEmbeddings: 4,
		EmbeddingAttempts:       3,
		RetryDelay:              time.Second,
		RequestTimeout:          60 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//   cfg := NewConfig(
//       WithHost("http://localhost:11434/v1"),
//       WithEmbeddingModel("text-embedding-3-small"),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.ChatHost = normalizeHost(c.ChatHost)
	if c.APIKey == "" {
		// langchaingo refuses an empty token even for servers without auth
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ChatHost == "" {
		return errors.New("ai config: ChatHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	if c.EmbeddingBatchSize < 1 {
		return errors.New("ai config: EmbeddingBatchSize must be positive")
	}
	if c.MaxConcurrentEmbeddings < 1 {
		return errors.New("ai config: MaxConcurrentEmbeddings must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond cannot be negative")
	}
	if c.EmbeddingAttempts < 1 {
		return errors.New("ai config: EmbeddingAttempts must be at least 1")
	}
	if c.RetryDelay < 0 || c.RequestTimeout < 0 {
		return errors.New("ai config: durations cannot be negative")
	}
	return nil
}
