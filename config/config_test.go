package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 10, cfg.Retrieval.K)
	assert.Equal(t, 4, cfg.Processing.Workers)
	assert.Equal(t, 10, cfg.Processing.EmbeddingBatchSize)
	assert.Equal(t, ":7860", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.InDelta(t, 0.1, cfg.Model.Temperature, 1e-9)
	assert.Equal(t, 4096, cfg.Model.MaxTokens)
	assert.Contains(t, cfg.Extract.Strategies, ".docx")
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_OverridesKeepDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
model:
  host: http://gpu-box:8000/v1
  chat_model: qwen2.5
index:
  backend: badger
  path: /var/lib/docqa
chunking:
  size: 500
  overlap: 50
processing:
  retry_delay: 250ms
  request_timeout: 2m
extract:
  strategies:
    .pdf: pdftotext
`))
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:8000/v1", cfg.Model.Host)
	assert.Equal(t, "qwen2.5", cfg.Model.ChatModel)
	assert.Equal(t, "nomic-embed-text", cfg.Model.EmbeddingModel, "unset fields keep defaults")
	assert.Equal(t, "badger", cfg.Index.Backend)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 250*time.Millisecond, cfg.Processing.RetryDelay)
	assert.Equal(t, 2*time.Minute, cfg.Processing.RequestTimeout)
	assert.Equal(t, "pdftotext", cfg.Extract.Strategies[".pdf"])
	assert.Equal(t, "docx", cfg.Extract.Strategies[".docx"])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "model: [unterminated"},
		{"overlap not below size", "chunking: {size: 100, overlap: 100}"},
		{"zero k", "retrieval: {k: 0}"},
		{"threshold out of range", "retrieval: {score_threshold: 1.5}"},
		{"no workers", "processing: {workers: 0}"},
		{"persistent backend without path", "index: {backend: sqlite, path: ''}"},
		{"extension without dot", "extract: {strategies: {pdf: pdf}}"},
		{"temperature", "model: {temperature: 3}"},
		{"context budget", "synthesis: {max_context_chars: 0}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.K = 0
	cfg.Server.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval.k")
	assert.Contains(t, err.Error(), "server.addr")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "docqa.yaml")
	cfg := Default()
	cfg.Index.Backend = "sqlite"
	cfg.Index.Path = "index.db"
	cfg.Processing.RetryDelay = 3 * time.Second

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestAIConfig(t *testing.T) {
	cfg := Default()
	cfg.Model.Host = "http://shared:11434"
	cfg.Model.ChatHost = "http://chat:9000/v1"
	cfg.Processing.EmbeddingAttempts = 5

	aiCfg := cfg.AIConfig("secret")
	require.NoError(t, aiCfg.Validate())
	assert.Equal(t, "http://shared:11434/v1", aiCfg.EmbeddingHost)
	assert.Equal(t, "http://chat:9000/v1", aiCfg.ChatHost)
	assert.Equal(t, "secret", aiCfg.APIKey)
	assert.Equal(t, 5, aiCfg.EmbeddingAttempts)
	assert.Equal(t, cfg.Model.MaxTokens, aiCfg.MaxTokens)
}

func TestAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKeyEnv = "DOCQA_TEST_API_KEY"
	t.Setenv("DOCQA_TEST_API_KEY", "sk-test")
	assert.Equal(t, "sk-test", cfg.APIKey())

	cfg.Model.APIKeyEnv = ""
	assert.Empty(t, cfg.APIKey())
}
