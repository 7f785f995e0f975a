package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Index {
		idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
		require.NoError(t, err)
		return idx
	})
}

func TestIndex_InMemory(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Add(ctx, storagetest.Entry("a.pdf", 1, 0, 1, 0)))
	results, err := idx.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIndex_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.db")

	idx, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, idx.Path())
	require.NoError(t, idx.Add(ctx, storagetest.Entry("a.pdf", 1, 0, 1, 0, 0)))
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 3, stats.Dimension)

	err = idx.Add(ctx, storagetest.Entry("a.pdf", 1, 1, 1, 0))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestIndex_LargeChunkIDs(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(":memory:")
	require.NoError(t, err)
	defer idx.Close()

	e := storagetest.Entry("a.pdf", 1, 0, 1)
	e.Chunk.ID = core.ID(^uint64(0))
	require.NoError(t, idx.Add(ctx, e))
	require.NoError(t, idx.Add(ctx, e))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestIndex_RejectsForeignVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(path)
	require.NoError(t, err)
	_, err = idx.db.Exec(`UPDATE meta SET value = '99' WHERE key = 'version'`)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, core.ErrCorruptIndex)
}

func TestRegistered(t *testing.T) {
	_, err := storage.Open(storage.Config{Backend: BackendName})
	assert.ErrorIs(t, err, storage.ErrPathRequired)

	idx, err := storage.Open(storage.Config{Backend: BackendName, Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	defer idx.Close()
}
