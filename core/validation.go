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


package core

import (
	"fmt"
	"strings"
)

func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidChunk)
	}

	if len(chunk.Pages) == 0 {
		return fmt.Errorf("%w: no pages", ErrInvalidChunk)
	}

	for _, p := range chunk.Pages {
		if p < 1 {
			return fmt.Errorf("%w: page %d", ErrInvalidChunk, p)
		}
	}

	if chunk.Start < 0 || chunk.End < chunk.Start {
		return fmt.Errorf("%w: span %d-%d", ErrInvalidChunk, chunk.Start, chunk.End)
	}

	return nil
}

func ValidateIndexEntry(entry *IndexEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidChunk)
	}

	if len(entry.Vector) == 0 {
		return fmt.Errorf("%w: chunk %d", ErrEmptyVector, entry.Chunk.ID)
	}

	return ValidateChunk(&entry.Chunk)
}

func ValidateImageRef(ref *ImageRef) error {
	if ref == nil {
		return fmt.Errorf("%w: image is nil", ErrInvalidImageRef)
	}

	if ref.DocumentID == "" {
		return fmt.Errorf("%w: document id is empty", ErrInvalidImageRef)
	}

	if ref.Page < 1 {
		return fmt.Errorf("%w: page %d", ErrInvalidImageRef, ref.Page)
	}

	if ref.Width < 0 || ref.Height < 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImageRef, ref.Width, ref.Height)
	}

	return nil
}

// ValidateQuestion rejects empty or whitespace-only questions.
func ValidateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question is empty", ErrInvalidQuery)
	}
	return nil
}
