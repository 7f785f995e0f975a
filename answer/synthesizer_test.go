package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/docqa/ai/mock"
	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(doc string, page int, score float32, text string) core.ScoredChunk {
	return core.ScoredChunk{
		Chunk: core.Chunk{
			ID:         core.ChunkID(doc, page, 0, len(text), text),
			DocumentID: doc,
			Pages:      []int{page},
			End:        len(text),
			Text:       text,
		},
		Score: score,
	}
}

func sampleResult() *core.RetrievalResult {
	return &core.RetrievalResult{
		Question: "Where is the hail damage?",
		Chunks: []core.ScoredChunk{
			scored("reports/RoofReport-7.pdf", 2, 0.9, "Hail damage was found on the north slope near the ridge."),
			scored("reports/RoofReport-7.pdf", 3, 0.7, "Gutters on the east side are loose."),
			scored("reports/RoofReport-8.pdf", 1, 0.4, "The attic shows no water staining."),
		},
		Images: []core.ImageRef{
			{DocumentID: "reports/RoofReport-7.pdf", Page: 2, Width: 640, Height: 480, Path: "RoofReport-7/page2_img0.png"},
			{DocumentID: "reports/RoofReport-9.pdf", Page: 5, Width: 10, Height: 10},
		},
	}
}

func TestNewSynthesizer(t *testing.T) {
	_, err := NewSynthesizer(nil)
	assert.ErrorIs(t, err, ErrCompleterRequired)

	_, err = NewSynthesizer(mock.NewMockCompleter(), WithMaxContextChars(0))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = NewSynthesizer(mock.NewMockCompleter(), WithSnippetLength(-1))
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	s, err := NewSynthesizer(mock.NewMockCompleter(), WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxContextChars, s.maxContext)
}

func TestSynthesize(t *testing.T) {
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, system, user string) (string, error) {
		return "  The hail damage is on the north slope (RoofReport-7.pdf, page 2).\n", nil
	}
	s, err := NewSynthesizer(completer)
	require.NoError(t, err)

	result := sampleResult()
	ans, err := s.Synthesize(context.Background(), result)
	require.NoError(t, err)

	assert.Equal(t, 1, completer.CallCount())
	assert.Equal(t, "The hail damage is on the north slope (RoofReport-7.pdf, page 2).", ans.Text)
	assert.Equal(t, result.Question, ans.Question)
	assert.Equal(t, result.Images, ans.Images, "images are returned unmodified")

	require.Len(t, ans.Citations, 3)
	for i, c := range ans.Citations {
		assert.Equal(t, result.Chunks[i].Chunk.ID, c.ChunkID)
		assert.Equal(t, result.Chunks[i].Score, c.Score)
		assert.NotEmpty(t, c.Snippet)
	}

	system, user := completer.LastPrompt()
	assert.Contains(t, system, "DIAGRAM/IMAGE")
	assert.Contains(t, user, "please answer this question: Where is the hail damage?")
	assert.Contains(t, user, "Document 1:\nHail damage was found")
	assert.Contains(t, user, "Source: RoofReport-7.pdf, page 2")
	assert.Contains(t, user, "Document 4:\n[DIAGRAM/IMAGE: Located on page 2 of RoofReport-7.pdf. Size: 640x480 pixels.")
	assert.NotContains(t, user, "page 5 of RoofReport-9.pdf", "images off the cited pages are not described")
}

func TestSynthesize_NoChunks(t *testing.T) {
	completer := mock.NewMockCompleter()
	s, err := NewSynthesizer(completer)
	require.NoError(t, err)

	images := []core.ImageRef{{DocumentID: "a.pdf", Page: 1}}
	ans, err := s.Synthesize(context.Background(), &core.RetrievalResult{Question: "anything?", Images: images})
	require.NoError(t, err)

	assert.Equal(t, NoContextReply, ans.Text)
	assert.Empty(t, ans.Citations)
	assert.Equal(t, images, ans.Images)
	assert.Equal(t, 0, completer.CallCount())
}

func TestSynthesize_NilResult(t *testing.T) {
	s, err := NewSynthesizer(mock.NewMockCompleter())
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), nil)
	assert.ErrorIs(t, err, ErrResultRequired)
}

func TestSynthesize_BudgetDropsLowestScoring(t *testing.T) {
	result := sampleResult()
	first := chunkSection(1, &result.Chunks[0])
	second := chunkSection(2, &result.Chunks[1])
	budget := len([]rune(first)) + 1 + len([]rune(second))

	completer := mock.NewMockCompleter()
	s, err := NewSynthesizer(completer, WithMaxContextChars(budget))
	require.NoError(t, err)

	ans, err := s.Synthesize(context.Background(), result)
	require.NoError(t, err)

	require.Len(t, ans.Citations, 2)
	assert.Equal(t, result.Chunks[0].Chunk.ID, ans.Citations[0].ChunkID)
	assert.Equal(t, result.Chunks[1].Chunk.ID, ans.Citations[1].ChunkID)

	_, user := completer.LastPrompt()
	assert.Contains(t, user, result.Chunks[1].Chunk.Text, "kept chunks appear whole")
	assert.NotContains(t, user, "attic")
	assert.NotContains(t, user, "DIAGRAM/IMAGE", "no budget left for image lines")
	assert.Equal(t, result.Images, ans.Images)
}

func TestSynthesize_FirstChunkTooLarge(t *testing.T) {
	completer := mock.NewMockCompleter()
	s, err := NewSynthesizer(completer, WithMaxContextChars(10))
	require.NoError(t, err)

	ans, err := s.Synthesize(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, NoContextReply, ans.Text)
	assert.Equal(t, 0, completer.CallCount())
}

func TestSynthesize_ServiceError(t *testing.T) {
	upstream := errors.New("connection refused")
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, system, user string) (string, error) {
		return "", upstream
	}
	s, err := NewSynthesizer(completer)
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), sampleResult())
	assert.ErrorIs(t, err, core.ErrSynthesisService)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, 1, completer.CallCount(), "no automatic retry")
}

func TestSynthesize_EmptyReply(t *testing.T) {
	completer := mock.NewMockCompleter()
	completer.CompleteFunc = func(ctx context.Context, system, user string) (string, error) {
		return " \n", nil
	}
	s, err := NewSynthesizer(completer)
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), sampleResult())
	assert.ErrorIs(t, err, core.ErrSynthesisService)
}

func TestSynthesize_NoSnippets(t *testing.T) {
	s, err := NewSynthesizer(mock.NewMockCompleter(), WithSnippetLength(0))
	require.NoError(t, err)

	ans, err := s.Synthesize(context.Background(), sampleResult())
	require.NoError(t, err)
	for _, c := range ans.Citations {
		assert.Empty(t, c.Snippet)
	}
}

func TestBuildPrompt_ContextWithinBudget(t *testing.T) {
	result := sampleResult()
	for _, budget := range []int{50, 120, 200, 400, 10000} {
		p := BuildPrompt(result, budget)
		assert.LessOrEqual(t, p.ContextChars, budget)

		start := strings.Index(p.User, "Context Documents:\n") + len("Context Documents:\n")
		end := strings.LastIndex(p.User, "\nPlease provide")
		assert.Equal(t, p.ContextChars, len([]rune(p.User[start:end])), "budget %d", budget)
	}
}

func TestBuildPrompt_UnknownImageSize(t *testing.T) {
	result := &core.RetrievalResult{
		Question: "q",
		Chunks:   []core.ScoredChunk{scored("a.pdf", 1, 1, "text")},
		Images:   []core.ImageRef{{DocumentID: "a.pdf", Page: 1}},
	}
	p := BuildPrompt(result, DefaultMaxContextChars)
	require.Len(t, p.Images, 1)
	assert.Contains(t, p.User, "Size: unknown size.")
}

func TestSourceLine(t *testing.T) {
	assert.Equal(t, "a.pdf", sourceLine("dir/a.pdf", nil))
	assert.Equal(t, "a.pdf, page 3", sourceLine("dir/a.pdf", []int{3}))
	assert.Equal(t, "a.pdf, pages 3-4", sourceLine("dir/a.pdf", []int{3, 4}))
}
