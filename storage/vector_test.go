package storage

import (
	"testing"

	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	in := []float32{3, 4}
	out := NormalizeVector(in)
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)
	assert.Equal(t, []float32{3, 4}, in)

	zero := NormalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestDotProduct(t *testing.T) {
	assert.InDelta(t, 11.0, DotProduct([]float32{1, 2}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 3.0, DotProduct([]float32{1, 2, 9}, []float32{3}), 1e-6)
}

func TestPrepareEntries(t *testing.T) {
	valid := core.Chunk{DocumentID: "a.pdf", Pages: []int{1}}
	entries := []core.IndexEntry{
		{Chunk: valid, Vector: []float32{2, 0}},
		{Chunk: valid, Vector: []float32{0, 5}},
	}

	prepared, dim, err := PrepareEntries(0, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, dim)
	assert.Equal(t, []float32{1, 0}, prepared[0].Vector)
	assert.Equal(t, []float32{2, 0}, entries[0].Vector)

	_, _, err = PrepareEntries(3, entries)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, _, err = PrepareEntries(0, []core.IndexEntry{{Chunk: valid}})
	assert.ErrorIs(t, err, core.ErrEmptyVector)
}

func TestCheckQuery(t *testing.T) {
	assert.NoError(t, CheckQuery(0, []float32{1}, 1))
	assert.NoError(t, CheckQuery(2, []float32{1, 1}, 1))
	assert.ErrorIs(t, CheckQuery(2, []float32{1, 1}, 0), core.ErrInvalidQuery)
	assert.ErrorIs(t, CheckQuery(2, nil, 1), core.ErrInvalidQuery)
	assert.ErrorIs(t, CheckQuery(2, []float32{1}, 1), core.ErrDimensionMismatch)
}

func TestTopK_StableOnTies(t *testing.T) {
	results := []core.ScoredChunk{
		{Chunk: core.Chunk{ID: 1}, Score: 0.5},
		{Chunk: core.Chunk{ID: 2}, Score: 0.9},
		{Chunk: core.Chunk{ID: 3}, Score: 0.5},
		{Chunk: core.Chunk{ID: 4}, Score: 0.5},
	}
	top := TopK(results, 3)
	require.Len(t, top, 3)
	assert.Equal(t, core.ID(2), top[0].Chunk.ID)
	assert.Equal(t, core.ID(1), top[1].Chunk.ID)
	assert.Equal(t, core.ID(3), top[2].Chunk.ID)
}

func TestSortImages(t *testing.T) {
	refs := []core.ImageRef{
		{DocumentID: "b", Page: 1},
		{DocumentID: "a", Page: 10, Index: 0},
		{DocumentID: "a", Page: 2, Index: 1},
		{DocumentID: "a", Page: 2, Index: 0},
	}
	SortImages(refs)
	assert.Equal(t, []core.ImageRef{
		{DocumentID: "a", Page: 2, Index: 0},
		{DocumentID: "a", Page: 2, Index: 1},
		{DocumentID: "a", Page: 10, Index: 0},
		{DocumentID: "b", Page: 1},
	}, refs)
}
