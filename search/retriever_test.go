package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(doc string, pages []int, vector ...float32) core.IndexEntry {
	return core.IndexEntry{
		Chunk: core.Chunk{
			ID:         core.ChunkID(doc, pages[0], 0, len(vector), doc+" text"),
			DocumentID: doc,
			Pages:      pages,
			Text:       doc + " text",
		},
		Vector:   vector,
		Metadata: map[string]string{core.MetaSource: doc},
	}
}

// setupIndex builds an index with three chunks on the axes of a 3-d space.
func setupIndex(t *testing.T) *memory.Index {
	t.Helper()
	ctx := context.Background()
	idx := memory.New()
	require.NoError(t, idx.Add(ctx,
		entry("a.pdf", []int{1}, 1, 0, 0),
		entry("a.pdf", []int{2}, 0, 1, 0),
		entry("b.pdf", []int{1}, 0, 0, 1),
	))
	require.NoError(t, idx.AddImages(ctx,
		core.ImageRef{DocumentID: "a.pdf", Page: 1, Width: 100, Height: 50},
		core.ImageRef{DocumentID: "a.pdf", Page: 2, Index: 1, Width: 10, Height: 10},
		core.ImageRef{DocumentID: "a.pdf", Page: 2, Index: 0, Width: 20, Height: 20},
		core.ImageRef{DocumentID: "b.pdf", Page: 3, Width: 30, Height: 30},
	))
	return idx
}

// fixedEmbedder returns vector for every question.
func fixedEmbedder(vector ...float32) *mock.MockEmbedder {
	emb := mock.NewMockEmbedderWithDimension(len(vector))
	emb.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vector, nil
	}
	return emb
}

type recordingMonitor struct {
	calls   []string
	kept    int
	dropped int
}

func (m *recordingMonitor) Start(string, int)                { m.calls = append(m.calls, "start") }
func (m *recordingMonitor) AfterEmbedding(int)               { m.calls = append(m.calls, "embed") }
func (m *recordingMonitor) AfterSearch([]core.ScoredChunk)   { m.calls = append(m.calls, "search") }
func (m *recordingMonitor) AfterImageJoin([]core.ImageRef)   { m.calls = append(m.calls, "images") }
func (m *recordingMonitor) Finish(*core.RetrievalResult)     { m.calls = append(m.calls, "finish") }
func (m *recordingMonitor) AfterThreshold(kept, dropped int) {
	m.calls = append(m.calls, "threshold")
	m.kept, m.dropped = kept, dropped
}

func TestNewRetriever(t *testing.T) {
	idx := memory.New()
	emb := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		r, err := NewRetriever(idx, emb)
		require.NoError(t, err)
		assert.Equal(t, DefaultTopK, r.TopK())
	})

	t.Run("with options", func(t *testing.T) {
		r, err := NewRetriever(idx, emb, WithTopK(3), WithScoreThreshold(0.5), WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.Equal(t, 3, r.TopK())
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		_, err := NewRetriever(idx, emb, WithLogger(nil))
		require.NoError(t, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewRetriever(idx, emb, WithTopK(0))
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		_, err = NewRetriever(idx, emb, WithScoreThreshold(1.5))
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := NewRetriever(nil, emb)
		assert.Equal(t, ErrIndexRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewRetriever(idx, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestRetrieve_EmptyQuestionNeverEmbeds(t *testing.T) {
	emb := fixedEmbedder(1, 0, 0)
	r, err := NewRetriever(setupIndex(t), emb)
	require.NoError(t, err)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := r.Retrieve(context.Background(), q)
		assert.ErrorIs(t, err, core.ErrInvalidQuery)
	}
	assert.Zero(t, emb.CallCount())
}

func TestRetrieve_InvalidK(t *testing.T) {
	emb := fixedEmbedder(1, 0, 0)
	r, err := NewRetriever(setupIndex(t), emb)
	require.NoError(t, err)

	_, err = r.RetrieveK(context.Background(), "roof pitch", 0)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)
	assert.Zero(t, emb.CallCount())
}

func TestRetrieve_NothingIndexed(t *testing.T) {
	emb := fixedEmbedder(1, 0, 0)
	r, err := NewRetriever(memory.New(), emb)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "anything")
	assert.ErrorIs(t, err, core.ErrNothingIndexed)
	assert.Zero(t, emb.CallCount())
}

func TestRetrieve_RankingAndImageJoin(t *testing.T) {
	r, err := NewRetriever(setupIndex(t), fixedEmbedder(0.1, 0.9, 0.5))
	require.NoError(t, err)

	result, err := r.RetrieveK(context.Background(), "  what is on page two?  ", 2)
	require.NoError(t, err)
	assert.Equal(t, "what is on page two?", result.Question)

	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "a.pdf", result.Chunks[0].Chunk.DocumentID)
	assert.Equal(t, []int{2}, result.Chunks[0].Chunk.Pages)
	assert.Equal(t, "b.pdf", result.Chunks[1].Chunk.DocumentID)
	assert.GreaterOrEqual(t, result.Chunks[0].Score, result.Chunks[1].Score)

	// a.pdf page 2 carries two images; b.pdf page 1 none (its image is on page 3)
	require.Len(t, result.Images, 2)
	for i, img := range result.Images {
		assert.Equal(t, "a.pdf", img.DocumentID)
		assert.Equal(t, 2, img.Page)
		assert.Equal(t, i, img.Index)
	}
}

func TestRetrieve_KLargerThanIndex(t *testing.T) {
	r, err := NewRetriever(setupIndex(t), fixedEmbedder(1, 1, 1), WithTopK(50))
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), "everything")
	require.NoError(t, err)
	assert.Len(t, result.Chunks, 3)
	assert.Len(t, result.Images, 3)
}

func TestRetrieve_MultiPageChunk(t *testing.T) {
	ctx := context.Background()
	idx := memory.New()
	require.NoError(t, idx.Add(ctx, entry("c.pdf", []int{3, 4}, 1, 0)))
	require.NoError(t, idx.AddImages(ctx,
		core.ImageRef{DocumentID: "c.pdf", Page: 4},
		core.ImageRef{DocumentID: "c.pdf", Page: 3},
		core.ImageRef{DocumentID: "c.pdf", Page: 5},
	))

	r, err := NewRetriever(idx, fixedEmbedder(1, 0))
	require.NoError(t, err)
	result, err := r.Retrieve(ctx, "spanning")
	require.NoError(t, err)
	require.Len(t, result.Images, 2)
	assert.Equal(t, 3, result.Images[0].Page)
	assert.Equal(t, 4, result.Images[1].Page)
}

func TestRetrieve_ScoreThreshold(t *testing.T) {
	r, err := NewRetriever(setupIndex(t), fixedEmbedder(1, 0.2, 0), WithScoreThreshold(0.5))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	result, err := r.RetrieveWithMonitor(context.Background(), "page one", 3, monitor)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, []int{1}, result.Chunks[0].Chunk.Pages)
	assert.Equal(t, 1, monitor.kept)
	assert.Equal(t, 2, monitor.dropped)
	assert.Equal(t, []string{"start", "embed", "search", "threshold", "images", "finish"}, monitor.calls)
}

func TestRetrieve_NoThresholdSkipsHook(t *testing.T) {
	r, err := NewRetriever(setupIndex(t), fixedEmbedder(1, 0, 0))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	_, err = r.RetrieveWithMonitor(context.Background(), "q", 1, monitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embed", "search", "images", "finish"}, monitor.calls)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	emb := mock.NewMockEmbedder()
	emb.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}
	r, err := NewRetriever(setupIndex(t), emb)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "question")
	assert.ErrorIs(t, err, core.ErrEmbeddingService)
}

func TestRetrieve_WrongEmbedderDimension(t *testing.T) {
	r, err := NewRetriever(setupIndex(t), fixedEmbedder(1, 0))
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "question")
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}
