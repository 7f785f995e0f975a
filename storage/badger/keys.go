package badger

import (
	"encoding/binary"

	"github.com/poiesic/docqa/core"
)

// Key prefixes for different data types
const (
	metaVersionKey = "meta:version"
	metaDimKey     = "meta:dim"
	entryPrefix    = "entry:"
	chunkPrefix    = "chunk:"
	imagePrefix    = "image:"
	documentPrefix = "doc:"
	entrySeq       = "entryseq"
)

// makeEntryKey generates the key of an index entry.
// Format: prefix + big-endian sequence, so iteration follows insertion order.
func makeEntryKey(seq uint64) []byte {
	buf := make([]byte, len(entryPrefix)+8)
	offset := copy(buf, entryPrefix)
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// makeChunkKey generates the key recording that a chunk ID is present.
func makeChunkKey(id core.ID) []byte {
	buf := make([]byte, len(chunkPrefix)+8)
	offset := copy(buf, chunkPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePageImagePrefix generates the prefix shared by the images of one page.
// Format: prefix + document + 0x00 + big-endian page
func makePageImagePrefix(documentID string, page int) []byte {
	buf := make([]byte, len(imagePrefix)+len(documentID)+1+4)
	offset := copy(buf, imagePrefix)
	offset += copy(buf[offset:], documentID)
	buf[offset] = 0
	offset++
	binary.BigEndian.PutUint32(buf[offset:], uint32(page))
	return buf
}

// makeImageKey generates the key of an image record.
// Format: page image prefix + big-endian index
func makeImageKey(ref *core.ImageRef) []byte {
	prefix := makePageImagePrefix(ref.DocumentID, ref.Page)
	buf := make([]byte, len(prefix)+4)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint32(buf[offset:], uint32(ref.Index))
	return buf
}

// makeDocumentKey generates the key recording that a document has entries.
func makeDocumentKey(documentID string) []byte {
	return []byte(documentPrefix + documentID)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
