// Package storagetest provides a conformance suite run against every
// storage.Index backend.
package storagetest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens a fresh, empty index for one test. The suite closes it.
type Factory func(t *testing.T) storage.Index

// Entry builds an index entry for chunk seq of page in doc.
func Entry(doc string, page, seq int, vector ...float32) core.IndexEntry {
	return core.IndexEntry{
		Chunk: core.Chunk{
			ID:         core.ChunkID(doc, page, seq*100, seq*100+100, "chunk text"),
			DocumentID: doc,
			Pages:      []int{page},
			Start:      seq * 100,
			End:        seq*100 + 100,
			Seq:        seq,
			Text:       "chunk text",
		},
		Vector: vector,
		Metadata: map[string]string{
			core.MetaSource: core.DocumentName(doc),
			core.MetaPage:   "1",
		},
	}
}

// Run runs the conformance suite against the backend produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, idx storage.Index)
	}{
		{"EmptyIndexSearch", testEmptySearch},
		{"Ranking", testRanking},
		{"NormalisesVectors", testNormalises},
		{"DimensionMismatchInsertsNothing", testDimensionMismatch},
		{"TiesKeepInsertionOrder", testTies},
		{"KLargerThanIndex", testKLarger},
		{"InvalidQueries", testInvalidQueries},
		{"DuplicateChunksSkipped", testDuplicates},
		{"ImagesFor", testImagesFor},
		{"ImagesReplaced", testImagesReplaced},
		{"InvalidImageRejected", testInvalidImage},
		{"ScanOrder", testScanOrder},
		{"ScanStopsOnError", testScanStops},
		{"Stats", testStats},
		{"HasDocument", testHasDocument},
		{"PersistSnapshot", testPersist},
		{"Closed", testClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := open(t)
			defer idx.Close()
			tt.fn(t, idx)
		})
	}
}

func chunkIDs(results []core.ScoredChunk) []core.ID {
	ids := make([]core.ID, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}

func testEmptySearch(t *testing.T, idx storage.Index) {
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testRanking(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	a := Entry("a.pdf", 1, 0, 1, 0)
	b := Entry("a.pdf", 1, 1, 0, 1)
	c := Entry("b.pdf", 2, 0, 0.7, 0.7)
	require.NoError(t, idx.Add(ctx, a, b, c))

	results, err := idx.Search(ctx, []float32{2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []core.ID{a.Chunk.ID, c.Chunk.ID}, chunkIDs(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-3)
	assert.Equal(t, "b.pdf", results[1].Metadata[core.MetaSource])
	assert.Equal(t, "chunk text", results[1].Chunk.Text)
}

func testNormalises(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	in := Entry("a.pdf", 1, 0, 3, 4)
	require.NoError(t, idx.Add(ctx, in))
	assert.Equal(t, []float32{3, 4}, in.Vector, "caller's vector must not be modified")

	var got []core.IndexEntry
	require.NoError(t, idx.Scan(ctx, func(e core.IndexEntry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 1)
	assert.InDelta(t, 0.6, got[0].Vector[0], 1e-6)
	assert.InDelta(t, 0.8, got[0].Vector[1], 1e-6)
}

func testDimensionMismatch(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, Entry("a.pdf", 1, 0, 1, 0)))

	err := idx.Add(ctx, Entry("a.pdf", 1, 1, 0, 1), Entry("a.pdf", 1, 2, 1, 0, 0))
	require.ErrorIs(t, err, core.ErrDimensionMismatch)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 2, stats.Dimension)

	err = idx.Add(ctx, Entry("a.pdf", 1, 3, 1, 0, 0))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func testTies(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	var want []core.ID
	for i := 0; i < 5; i++ {
		e := Entry("a.pdf", 1, i, 0.5, 0.5)
		want = append(want, e.Chunk.ID)
		require.NoError(t, idx.Add(ctx, e))
	}

	results, err := idx.Search(ctx, []float32{1, 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, want, chunkIDs(results))
}

func testKLarger(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, Entry("a.pdf", 1, 0, 1, 0), Entry("a.pdf", 1, 1, 0, 1)))

	results, err := idx.Search(ctx, []float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func testInvalidQueries(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, Entry("a.pdf", 1, 0, 1, 0)))

	_, err := idx.Search(ctx, []float32{1, 0}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	_, err = idx.Search(ctx, nil, 3)
	assert.ErrorIs(t, err, core.ErrInvalidQuery)

	_, err = idx.Search(ctx, []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func testDuplicates(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	e := Entry("a.pdf", 1, 0, 1, 0)
	require.NoError(t, idx.Add(ctx, e))
	require.NoError(t, idx.Add(ctx, e, Entry("a.pdf", 1, 1, 0, 1)))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}

func testImagesFor(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	refs := []core.ImageRef{
		{DocumentID: "b.pdf", Page: 1, Index: 0, Width: 10, Height: 10},
		{DocumentID: "a.pdf", Page: 2, Index: 1, Width: 20, Height: 20, Path: "a/page_2_image_1.png"},
		{DocumentID: "a.pdf", Page: 2, Index: 0, Width: 30, Height: 30},
		{DocumentID: "a.pdf", Page: 3, Index: 0},
		{DocumentID: "a.pdf", Page: 12, Index: 0},
	}
	require.NoError(t, idx.AddImages(ctx, refs...))

	got, err := idx.ImagesFor(ctx, []core.PageKey{
		{DocumentID: "b.pdf", Page: 1},
		{DocumentID: "a.pdf", Page: 2},
		{DocumentID: "a.pdf", Page: 2},
		{DocumentID: "c.pdf", Page: 1},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, refs[2], got[0])
	assert.Equal(t, refs[1], got[1])
	assert.Equal(t, refs[0], got[2])

	got, err = idx.ImagesFor(ctx, []core.PageKey{{DocumentID: "a.pdf", Page: 1}})
	require.NoError(t, err)
	assert.Empty(t, got, "page 1 must not match page 12")

	got, err = idx.ImagesFor(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testImagesReplaced(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	require.NoError(t, idx.AddImages(ctx, core.ImageRef{DocumentID: "a.pdf", Page: 1, Width: 1}))
	require.NoError(t, idx.AddImages(ctx, core.ImageRef{DocumentID: "a.pdf", Page: 1, Width: 2}))

	got, err := idx.ImagesFor(ctx, []core.PageKey{{DocumentID: "a.pdf", Page: 1}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Width)
}

func testInvalidImage(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	err := idx.AddImages(ctx, core.ImageRef{DocumentID: "a.pdf", Page: 1}, core.ImageRef{DocumentID: "a.pdf"})
	require.ErrorIs(t, err, core.ErrInvalidImageRef)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Images)
}

func testScanOrder(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	var want []core.ID
	for i := 0; i < 4; i++ {
		e := Entry("a.pdf", 1, i, float32(i+1), 1)
		want = append(want, e.Chunk.ID)
		require.NoError(t, idx.Add(ctx, e))
	}

	var got []core.ID
	require.NoError(t, idx.Scan(ctx, func(e core.IndexEntry) error {
		got = append(got, e.Chunk.ID)
		return nil
	}))
	assert.Equal(t, want, got)
}

func testScanStops(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, Entry("a.pdf", 1, 0, 1, 0), Entry("a.pdf", 1, 1, 0, 1)))

	stop := errors.New("stop")
	calls := 0
	err := idx.Scan(ctx, func(core.IndexEntry) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func testStats(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Entries)
	assert.Zero(t, stats.Dimension)
	assert.NotEmpty(t, stats.Backend)

	require.NoError(t, idx.Add(ctx,
		Entry("a.pdf", 1, 0, 1, 0, 0),
		Entry("a.pdf", 2, 0, 0, 1, 0),
		Entry("b.pdf", 1, 0, 0, 0, 1)))
	require.NoError(t, idx.AddImages(ctx, core.ImageRef{DocumentID: "a.pdf", Page: 1}))

	stats, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 3, stats.Dimension)
}

func testPersist(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, Entry("a.pdf", 1, 0, 1, 2), Entry("b.pdf", 4, 0, 2, 1)))
	ref := core.ImageRef{DocumentID: "b.pdf", Page: 4, Width: 5, Height: 6, Format: "png"}
	require.NoError(t, idx.AddImages(ctx, ref))

	path := filepath.Join(t.TempDir(), "nested", "index.dqix")
	require.NoError(t, idx.Persist(ctx, path))

	snap, err := storage.ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Dimension)
	assert.Equal(t, []core.ImageRef{ref}, snap.Images)

	var scanned []core.IndexEntry
	require.NoError(t, idx.Scan(ctx, func(e core.IndexEntry) error {
		scanned = append(scanned, e)
		return nil
	}))
	assert.Equal(t, scanned, snap.Entries)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary snapshot files must be removed")
}

func testClosed(t *testing.T, idx storage.Index) {
	ctx := context.Background()
	require.NoError(t, idx.Close())

	assert.ErrorIs(t, idx.Add(ctx, Entry("a.pdf", 1, 0, 1)), storage.ErrStorageClosed)
	_, err := idx.Search(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = idx.Stats(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	_, err = idx.HasDocument(ctx, "a.pdf")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func testHasDocument(t *testing.T, idx storage.Index) {
	ctx := context.Background()

	found, err := idx.HasDocument(ctx, "a.pdf")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, idx.Add(ctx, Entry("a.pdf", 1, 0, 1, 0)))
	require.NoError(t, idx.AddImages(ctx, core.ImageRef{DocumentID: "b.pdf", Page: 1}))

	found, err = idx.HasDocument(ctx, "a.pdf")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = idx.HasDocument(ctx, "b.pdf")
	require.NoError(t, err)
	assert.False(t, found, "images alone do not make a document indexed")
}
