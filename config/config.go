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


// Package config loads and validates the application configuration file.
//
// The file is YAML. Any field left out keeps its default, so an empty file is
// a valid configuration. Secrets never live in the file: the model section
// names the environment variable that holds the API key and the caller
// resolves it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/chunk"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/extract"
	"github.com/poiesic/docqa/search"
	"github.com/poiesic/docqa/storage"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "docqa.yaml"

// ModelConfig selects the OpenAI-compatible endpoints and models.
type ModelConfig struct {
	Host           string  `yaml:"host"`
	EmbeddingHost  string  `yaml:"embedding_host,omitempty"`
	ChatHost       string  `yaml:"chat_host,omitempty"`
	EmbeddingModel string  `yaml:"embedding_model"`
	ChatModel      string  `yaml:"chat_model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	APIKeyEnv      string  `yaml:"api_key_env"`
}

// ChunkingConfig sets the chunk window in characters.
type ChunkingConfig struct {
	Size      int `yaml:"size"`
	Overlap   int `yaml:"overlap"`
	Tolerance int `yaml:"tolerance"`
}

// RetrievalConfig sets the default result count and score cutoff.
type RetrievalConfig struct {
	K              int     `yaml:"k"`
	ScoreThreshold float32 `yaml:"score_threshold"`
}

// ProcessingConfig bounds ingestion and embedding concurrency.
type ProcessingConfig struct {
	Workers                 int           `yaml:"workers"`
	EmbeddingBatchSize      int           `yaml:"embedding_batch_size"`
	MaxConcurrentEmbeddings int           `yaml:"max_concurrent_embeddings"`
	RequestsPerSecond       float64       `yaml:"requests_per_second"`
	EmbeddingAttempts       int           `yaml:"embedding_attempts"`
	RetryDelay              time.Duration `yaml:"retry_delay"`
	RequestTimeout          time.Duration `yaml:"request_timeout"`
}

// ImagesConfig controls whether extracted images are written to disk.
type ImagesConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	MaxDimension int    `yaml:"max_dimension"`
}

// ExtractConfig maps file extensions to extraction strategies.
type ExtractConfig struct {
	Strategies map[string]string `yaml:"strategies"`
}

// SynthesisConfig bounds the answer prompt.
type SynthesisConfig struct {
	MaxContextChars int `yaml:"max_context_chars"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the root of the configuration file.
type Config struct {
	InputDir   string           `yaml:"input_dir"`
	Model      ModelConfig      `yaml:"model"`
	Index      storage.Config   `yaml:"index"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Processing ProcessingConfig `yaml:"processing"`
	Images     ImagesConfig     `yaml:"images"`
	Extract    ExtractConfig    `yaml:"extract"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Server     ServerConfig     `yaml:"server"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		InputDir: "input_files",
		Model: ModelConfig{
			Host:           aiDefaults.EmbeddingHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			ChatModel:      aiDefaults.ChatModel,
			Temperature:    aiDefaults.Temperature,
			MaxTokens:      aiDefaults.MaxTokens,
			APIKeyEnv:      "OPENAI_API_KEY",
		},
		Index: storage.Config{
			Backend: storage.DefaultBackend,
			Path:    "docqa-index",
		},
		Chunking: ChunkingConfig{
			Size:    chunk.DefaultChunkSize,
			Overlap: chunk.DefaultOverlap,
		},
		Retrieval: RetrievalConfig{
			K: search.DefaultTopK,
		},
		Processing: ProcessingConfig{
			Workers:                 4,
			EmbeddingBatchSize:      aiDefaults.EmbeddingBatchSize,
			MaxConcurrentEmbeddings: aiDefaults.MaxConcurrentEmbeddings,
			EmbeddingAttempts:       aiDefaults.EmbeddingAttempts,
			RetryDelay:              aiDefaults.RetryDelay,
			RequestTimeout:          aiDefaults.RequestTimeout,
		},
		Images: ImagesConfig{
			Enabled: true,
			Dir:     "extracted_images",
		},
		Extract: ExtractConfig{
			Strategies: extract.DefaultStrategies(),
		},
		Synthesis: SynthesisConfig{
			MaxContextChars: 12000,
		},
		Server: ServerConfig{
			Addr: ":7860",
		},
	}
}

// Load reads the configuration at path on top of the defaults.
// A missing file yields the defaults and logs a warning.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("config file not found, using defaults", "path", path)
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}
	if len(cfg.Extract.Strategies) == 0 {
		cfg.Extract.Strategies = extract.DefaultStrategies()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every out-of-range value at once.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Model.Host != "" || (c.Model.EmbeddingHost != "" && c.Model.ChatHost != ""), "model.host is required")
	check(c.Model.EmbeddingModel != "", "model.embedding_model is required")
	check(c.Model.ChatModel != "", "model.chat_model is required")
	check(c.Model.Temperature >= 0 && c.Model.Temperature <= 2, "model.temperature must be within [0, 2]")
	check(c.Model.MaxTokens >= 1, "model.max_tokens must be positive")

	check(c.Index.Backend != "", "index.backend is required")
	check(c.Index.Backend == storage.DefaultBackend || c.Index.Path != "", "index.path is required for the %s backend", c.Index.Backend)

	check(c.Chunking.Size >= 1, "chunking.size must be positive")
	check(c.Chunking.Overlap >= 0 && c.Chunking.Overlap < c.Chunking.Size, "chunking.overlap must be within [0, size)")
	check(c.Chunking.Tolerance >= 0, "chunking.tolerance cannot be negative")

	check(c.Retrieval.K >= 1, "retrieval.k must be at least 1")
	check(c.Retrieval.ScoreThreshold >= -1 && c.Retrieval.ScoreThreshold <= 1, "retrieval.score_threshold must be within [-1, 1]")

	p := c.Processing
	check(p.Workers >= 1, "processing.workers must be positive")
	check(p.EmbeddingBatchSize >= 1, "processing.embedding_batch_size must be positive")
	check(p.MaxConcurrentEmbeddings >= 1, "processing.max_concurrent_embeddings must be positive")
	check(p.RequestsPerSecond >= 0, "processing.requests_per_second cannot be negative")
	check(p.EmbeddingAttempts >= 1, "processing.embedding_attempts must be at least 1")
	check(p.RetryDelay >= 0 && p.RequestTimeout >= 0, "processing durations cannot be negative")

	check(!c.Images.Enabled || c.Images.Dir != "", "images.dir is required when images are enabled")
	check(c.Images.MaxDimension >= 0, "images.max_dimension cannot be negative")

	for ext, name := range c.Extract.Strategies {
		check(strings.HasPrefix(ext, "."), "extract.strategies key %q must start with a dot", ext)
		check(name != "", "extract.strategies[%q] is empty", ext)
	}

	check(c.Synthesis.MaxContextChars >= 1, "synthesis.max_context_chars must be positive")
	check(c.Server.Addr != "", "server.addr is required")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// AIConfig builds the service configuration with apiKey as the bearer token.
func (c *Config) AIConfig(apiKey string) *ai.Config {
	embeddingHost := c.Model.EmbeddingHost
	if embeddingHost == "" {
		embeddingHost = c.Model.Host
	}
	chatHost := c.Model.ChatHost
	if chatHost == "" {
		chatHost = c.Model.Host
	}

	return ai.NewConfig(
		ai.WithEmbeddingHost(embeddingHost),
		ai.WithChatHost(chatHost),
		ai.WithEmbeddingModel(c.Model.EmbeddingModel),
		ai.WithChatModel(c.Model.ChatModel),
		ai.WithAPIKey(apiKey),
		ai.WithTemperature(c.Model.Temperature),
		ai.WithMaxTokens(c.Model.MaxTokens),
		ai.WithEmbeddingBatchSize(c.Processing.EmbeddingBatchSize),
		ai.WithMaxConcurrentEmbeddings(c.Processing.MaxConcurrentEmbeddings),
		ai.WithRequestsPerSecond(c.Processing.RequestsPerSecond),
		ai.WithEmbeddingRetry(c.Processing.EmbeddingAttempts, c.Processing.RetryDelay),
		ai.WithRequestTimeout(c.Processing.RequestTimeout),
	)
}

// APIKey resolves the API key from the environment variable named in the
// model section. An unset variable yields an empty key.
func (c *Config) APIKey() string {
	if c.Model.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Model.APIKeyEnv)
}
