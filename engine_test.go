package docqa

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/poiesic/docqa/answer"
	"github.com/poiesic/docqa/config"
	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEngine struct {
	*Engine
	embedder  *mock.MockEmbedder
	completer *mock.MockCompleter
	cfg       *config.Config
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.InputDir = filepath.Join(dir, "input")
	cfg.Index.Path = filepath.Join(dir, "index.dqix")
	cfg.Images.Dir = filepath.Join(dir, "images")
	cfg.Chunking.Size = 200
	cfg.Chunking.Overlap = 50
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config) *testEngine {
	t.Helper()
	emb := mock.NewMockEmbedderWithDimension(32)
	completer := mock.NewMockCompleter()
	e, err := NewEngine(cfg, WithProvider(mock.NewMockProviderWithServices(emb, completer)))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return &testEngine{Engine: e, embedder: emb, completer: completer, cfg: cfg}
}

func writeInput(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	path := filepath.Join(cfg.InputDir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewEngine(t *testing.T) {
	t.Run("defaults with injected provider", func(t *testing.T) {
		e := newTestEngine(t, testConfig(t))
		assert.NotNil(t, e.Index())
		assert.NotNil(t, e.Images())
		assert.NotNil(t, e.Pipeline())
	})

	t.Run("images disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Images.Enabled = false
		e := newTestEngine(t, cfg)
		assert.Nil(t, e.Images())
	})

	t.Run("invalid configuration", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Chunking.Overlap = cfg.Chunking.Size
		_, err := NewEngine(cfg, WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Index.Backend = "cassandra"
		_, err := NewEngine(cfg, WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.Index.Path, []byte("not an index"), 0o644))
		_, err := NewEngine(cfg, WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, core.ErrCorruptIndex)
	})
}

func TestEngine_TwoPageScenario(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	e := newTestEngine(t, cfg)

	page1 := strings.Repeat("abcdefghij", 60)
	path := writeInput(t, cfg, "RoofReport-1.txt", page1+"\f \n")

	report, err := e.IngestFiles(ctx, []string{path})
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 4, report.Chunks())

	var spans [][2]int
	require.NoError(t, e.Index().Scan(ctx, func(entry core.IndexEntry) error {
		assert.Equal(t, []int{1}, entry.Chunk.Pages)
		spans = append(spans, [2]int{entry.Chunk.Start, entry.Chunk.End})
		return nil
	}))
	assert.Equal(t, [][2]int{{0, 200}, {150, 350}, {300, 500}, {450, 600}}, spans)

	require.NoError(t, e.Index().AddImages(ctx, core.ImageRef{DocumentID: path, Page: 1, Width: 320, Height: 200}))

	result, err := e.Retrieve(ctx, "abcdefghij", 2)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	for _, sc := range result.Chunks {
		assert.Equal(t, []int{1}, sc.Chunk.Pages)
	}
	require.Len(t, result.Images, 1)
	assert.Equal(t, 1, result.Images[0].Page)
}

func TestEngine_Ask(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	e := newTestEngine(t, cfg)

	writeInput(t, cfg, "RoofReport-7.txt", "The north slope shows hail damage on most shingles.\fGutters are intact.")
	writeInput(t, cfg, "nested/RoofReport-8.md", "# Summary\nNo leaks were found in the attic.")
	writeInput(t, cfg, "notes.csv", "ignored,file")

	report, err := e.IngestDirectory(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded())

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 3, stats.Entries)

	ans, err := e.Ask(ctx, "Where is the hail damage?", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, e.completer.CallCount())
	assert.NotEmpty(t, ans.Text)
	assert.Len(t, ans.Citations, 2)
	for i := 1; i < len(ans.Citations); i++ {
		assert.GreaterOrEqual(t, ans.Citations[i-1].Score, ans.Citations[i].Score)
	}

	_, user := e.completer.LastPrompt()
	assert.Contains(t, user, "Where is the hail damage?")
}

func TestEngine_QueryErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig(t))

	_, err := e.Ask(ctx, "anything", 0)
	assert.ErrorIs(t, err, core.ErrNothingIndexed)

	_, err = e.Ask(ctx, "   ", 0)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
	assert.Zero(t, e.embedder.CallCount(), "invalid questions never reach the embedder")
	assert.Zero(t, e.completer.CallCount())
}

func TestEngine_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first := newTestEngine(t, cfg)
	path := writeInput(t, cfg, "RoofReport-2.txt", "Flashing around the chimney is rusted.\fThe skylight seal is cracked.")
	_, err := first.IngestFiles(ctx, []string{path})
	require.NoError(t, err)

	before, err := first.Retrieve(ctx, "chimney flashing", 2)
	require.NoError(t, err)
	require.NoError(t, first.Persist(ctx))
	require.NoError(t, first.Close())

	second := newTestEngine(t, cfg)
	after, err := second.Retrieve(ctx, "chimney flashing", 2)
	require.NoError(t, err)
	assert.Equal(t, before.Chunks, after.Chunks)
}

func TestEngine_PersistentBackendsSkipSnapshot(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Index.Backend = "sqlite"
	cfg.Index.Path = filepath.Join(t.TempDir(), "index.db")

	e := newTestEngine(t, cfg)
	require.NoError(t, e.Persist(ctx))

	info, err := os.Stat(cfg.Index.Path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestEngine_NoContextReply(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Retrieval.ScoreThreshold = 1
	e := newTestEngine(t, cfg)

	path := writeInput(t, cfg, "RoofReport-3.txt", "Ridge vent is missing a cap.")
	_, err := e.IngestFiles(ctx, []string{path})
	require.NoError(t, err)

	ans, err := e.Ask(ctx, "What color is the siding?", 0)
	require.NoError(t, err)
	assert.Equal(t, answer.NoContextReply, ans.Text)
	assert.Zero(t, e.completer.CallCount())
}
