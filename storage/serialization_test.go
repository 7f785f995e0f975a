package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docqa/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Dimension: 3,
		Entries: []core.IndexEntry{
			{
				Chunk: core.Chunk{
					ID:         core.ChunkID("reports/RoofReport-7.pdf", 1, 0, 12, "Roof pitch 6"),
					DocumentID: "reports/RoofReport-7.pdf",
					Pages:      []int{1, 2},
					End:        12,
					Text:       "Roof pitch 6",
				},
				Vector:   []float32{0.6, 0.8, 0},
				Metadata: map[string]string{core.MetaSource: "RoofReport-7.pdf", core.MetaReportID: "7"},
			},
			{
				Chunk:  core.Chunk{ID: 9, DocumentID: "notes.txt", Pages: []int{1}, Seq: 1, Text: "ünïcödé"},
				Vector: []float32{0, 0, 1},
			},
		},
		Images: []core.ImageRef{
			{DocumentID: "reports/RoofReport-7.pdf", Page: 2, Width: 800, Height: 600,
				Path: "report_7/page_2_image_0.png", Format: "png", ReportID: "7"},
		},
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	want := sampleSnapshot()
	data := EncodeSnapshot(want)
	assert.Equal(t, "DQIX", string(data[:4]))

	got, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, want.Dimension, got.Dimension)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, want.Entries[0], got.Entries[0])
	assert.Equal(t, want.Entries[1].Chunk, got.Entries[1].Chunk)
	assert.Equal(t, want.Entries[1].Vector, got.Entries[1].Vector)
	assert.Equal(t, want.Images, got.Images)
}

func TestSnapshot_Empty(t *testing.T) {
	got, err := DecodeSnapshot(EncodeSnapshot(&Snapshot{}))
	require.NoError(t, err)
	assert.Zero(t, got.Dimension)
	assert.Empty(t, got.Entries)
	assert.Empty(t, got.Images)
}

func TestDecodeSnapshot_Corrupt(t *testing.T) {
	valid := EncodeSnapshot(sampleSnapshot())

	wrongVersion := []byte("DQIX")
	wrongVersion = append(wrongVersion, make([]byte, varint.PositiveInt.Size(SnapshotVersion+1))...)
	varint.PositiveInt.Marshal(SnapshotVersion+1, wrongVersion[4:])

	wrongDim := EncodeSnapshot(&Snapshot{
		Dimension: 2,
		Entries:   []core.IndexEntry{{Chunk: core.Chunk{DocumentID: "a", Pages: []int{1}}, Vector: []float32{1, 0, 0}}},
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XQID"), valid[4:]...)},
		{"short magic", []byte("DQ")},
		{"unsupported version", wrongVersion},
		{"truncated", valid[:len(valid)-5]},
		{"trailing bytes", append(append([]byte{}, valid...), 0x01)},
		{"vector dimension differs", wrongDim},
		{"count exceeds data", []byte{'D', 'Q', 'I', 'X', SnapshotVersion, 3, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot(tt.data)
			assert.ErrorIs(t, err, core.ErrCorruptIndex)
		})
	}
}

func TestWriteSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "index.dqix")

	require.NoError(t, WriteSnapshotFile(path, sampleSnapshot()))
	got, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Len(t, got.Entries, 2)

	// overwrite in place
	require.NoError(t, WriteSnapshotFile(path, &Snapshot{}))
	got, err = ReadSnapshotFile(path)
	require.NoError(t, err)
	assert.Empty(t, got.Entries)

	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestReadSnapshotFile_Missing(t *testing.T) {
	_, err := ReadSnapshotFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalUnmarshalIndexEntry(t *testing.T) {
	entry := sampleSnapshot().Entries[0]
	got, err := UnmarshalIndexEntry(MarshalIndexEntry(&entry))
	require.NoError(t, err)
	assert.Equal(t, entry, *got)

	_, err = UnmarshalIndexEntry([]byte{})
	assert.ErrorIs(t, err, core.ErrCorruptIndex)
}

func TestMarshalUnmarshalImageRef(t *testing.T) {
	ref := sampleSnapshot().Images[0]
	got, err := UnmarshalImageRef(MarshalImageRef(&ref))
	require.NoError(t, err)
	assert.Equal(t, ref, *got)
}
