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


package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docqa/core"
)

const (
	snapshotMagic = "DQIX"

	// SnapshotVersion is the snapshot format version written by EncodeSnapshot.
	SnapshotVersion = 1
)

// Snapshot is the portable form of an index.
type Snapshot struct {
	Dimension int
	Entries   []core.IndexEntry
	Images    []core.ImageRef
}

// EncodeSnapshot serializes a snapshot to bytes.
// Layout: magic, version, dimension, entry count, entries, image count, images.
func EncodeSnapshot(s *Snapshot) []byte {
	size := len(snapshotMagic) +
		varint.PositiveInt.Size(SnapshotVersion) +
		varint.PositiveInt.Size(s.Dimension) +
		varint.PositiveInt.Size(len(s.Entries)) +
		varint.PositiveInt.Size(len(s.Images))
	for _, e := range s.Entries {
		size += core.IndexEntryMUS.Size(e)
	}
	for _, r := range s.Images {
		size += core.ImageRefMUS.Size(r)
	}

	buf := make([]byte, size)
	n := copy(buf, snapshotMagic)
	n += varint.PositiveInt.Marshal(SnapshotVersion, buf[n:])
	n += varint.PositiveInt.Marshal(s.Dimension, buf[n:])
	n += varint.PositiveInt.Marshal(len(s.Entries), buf[n:])
	for _, e := range s.Entries {
		n += core.IndexEntryMUS.Marshal(e, buf[n:])
	}
	n += varint.PositiveInt.Marshal(len(s.Images), buf[n:])
	for _, r := range s.Images {
		n += core.ImageRefMUS.Marshal(r, buf[n:])
	}
	return buf
}

// DecodeSnapshot deserializes a snapshot. Any deviation from the expected layout,
// including trailing bytes and vectors of the wrong dimension, is ErrCorruptIndex.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) < len(snapshotMagic) || !bytes.Equal(data[:len(snapshotMagic)], []byte(snapshotMagic)) {
		return nil, fmt.Errorf("%w: bad magic", core.ErrCorruptIndex)
	}
	n := len(snapshotMagic)

	version, m, err := varint.PositiveInt.Unmarshal(data[n:])
	if err != nil {
		return nil, corrupt("version", err)
	}
	n += m
	if version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", core.ErrCorruptIndex, version)
	}

	s := &Snapshot{}
	s.Dimension, m, err = varint.PositiveInt.Unmarshal(data[n:])
	if err != nil {
		return nil, corrupt("dimension", err)
	}
	n += m

	count, m, err := readCount(data[n:])
	if err != nil {
		return nil, corrupt("entry count", err)
	}
	n += m
	s.Entries = make([]core.IndexEntry, 0, count)
	for i := 0; i < count; i++ {
		e, m, err := core.IndexEntryMUS.Unmarshal(data[n:])
		if err != nil {
			return nil, corrupt(fmt.Sprintf("entry %d", i), err)
		}
		n += m
		if len(e.Vector) != s.Dimension {
			return nil, fmt.Errorf("%w: entry %d has %d dimensions, snapshot declares %d",
				core.ErrCorruptIndex, i, len(e.Vector), s.Dimension)
		}
		s.Entries = append(s.Entries, e)
	}

	count, m, err = readCount(data[n:])
	if err != nil {
		return nil, corrupt("image count", err)
	}
	n += m
	s.Images = make([]core.ImageRef, 0, count)
	for i := 0; i < count; i++ {
		r, m, err := core.ImageRefMUS.Unmarshal(data[n:])
		if err != nil {
			return nil, corrupt(fmt.Sprintf("image %d", i), err)
		}
		n += m
		s.Images = append(s.Images, r)
	}

	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", core.ErrCorruptIndex, len(data)-n)
	}
	return s, nil
}

// readCount reads an element count that cannot exceed the remaining bytes,
// since every element takes at least one byte.
func readCount(data []byte) (int, int, error) {
	count, n, err := varint.PositiveInt.Unmarshal(data)
	if err != nil {
		return 0, n, err
	}
	if count < 0 || count > len(data)-n {
		return 0, n, core.ErrMalformedData
	}
	return count, n, nil
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%w: reading %s: %w", core.ErrCorruptIndex, what, err)
}

// WriteSnapshotFile writes a snapshot to path through a temporary file in the same
// directory followed by a rename, so readers never observe a partial file.
func WriteSnapshotFile(path string, s *Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(EncodeSnapshot(s)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadSnapshotFile reads and decodes the snapshot at path.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(data)
}

// MarshalIndexEntry serializes an IndexEntry to bytes.
func MarshalIndexEntry(entry *core.IndexEntry) []byte {
	buf := make([]byte, core.IndexEntryMUS.Size(*entry))
	core.IndexEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalIndexEntry deserializes an IndexEntry from bytes.
func UnmarshalIndexEntry(data []byte) (*core.IndexEntry, error) {
	entry, _, err := core.IndexEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, corrupt("entry", err)
	}
	return &entry, nil
}

// MarshalImageRef serializes an ImageRef to bytes.
func MarshalImageRef(ref *core.ImageRef) []byte {
	buf := make([]byte, core.ImageRefMUS.Size(*ref))
	core.ImageRefMUS.Marshal(*ref, buf)
	return buf
}

// UnmarshalImageRef deserializes an ImageRef from bytes.
func UnmarshalImageRef(data []byte) (*core.ImageRef, error) {
	ref, _, err := core.ImageRefMUS.Unmarshal(data)
	if err != nil {
		return nil, corrupt("image", err)
	}
	return &ref, nil
}
