package core

import (
	"errors"
	"testing"
)

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{
			name:    "valid chunk",
			chunk:   &Chunk{ID: 1, DocumentID: "a.pdf", Pages: []int{1}, Start: 0, End: 10, Text: "0123456789"},
			wantErr: nil,
		},
		{
			name:    "valid chunk with ID 0",
			chunk:   &Chunk{DocumentID: "a.pdf", Pages: []int{2}},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "missing document",
			chunk:   &Chunk{Pages: []int{1}},
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "no pages",
			chunk:   &Chunk{DocumentID: "a.pdf"},
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "page zero",
			chunk:   &Chunk{DocumentID: "a.pdf", Pages: []int{0}},
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "inverted span",
			chunk:   &Chunk{DocumentID: "a.pdf", Pages: []int{1}, Start: 10, End: 5},
			wantErr: ErrInvalidChunk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIndexEntry(t *testing.T) {
	valid := Chunk{DocumentID: "a.pdf", Pages: []int{1}}

	if err := ValidateIndexEntry(&IndexEntry{Chunk: valid, Vector: []float32{1}}); err != nil {
		t.Errorf("ValidateIndexEntry() error = %v, want nil", err)
	}

	if err := ValidateIndexEntry(&IndexEntry{Chunk: valid}); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("ValidateIndexEntry() error = %v, want %v", err, ErrEmptyVector)
	}

	if err := ValidateIndexEntry(&IndexEntry{Vector: []float32{1}}); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("ValidateIndexEntry() error = %v, want %v", err, ErrInvalidChunk)
	}

	if err := ValidateIndexEntry(nil); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("ValidateIndexEntry() error = %v, want %v", err, ErrInvalidChunk)
	}
}

func TestValidateImageRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     *ImageRef
		wantErr bool
	}{
		{"valid", &ImageRef{DocumentID: "a.pdf", Page: 1, Width: 640, Height: 480}, false},
		{"valid without stored copy", &ImageRef{DocumentID: "a.pdf", Page: 3}, false},
		{"nil", nil, true},
		{"missing document", &ImageRef{Page: 1}, true},
		{"page zero", &ImageRef{DocumentID: "a.pdf"}, true},
		{"negative width", &ImageRef{DocumentID: "a.pdf", Page: 1, Width: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageRef(tt.ref)
			if tt.wantErr && !errors.Is(err, ErrInvalidImageRef) {
				t.Errorf("ValidateImageRef() error = %v, want %v", err, ErrInvalidImageRef)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateImageRef() error = %v, want nil", err)
			}
		})
	}
}

func TestValidateQuestion(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		if err := ValidateQuestion(q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("ValidateQuestion(%q) error = %v, want %v", q, err, ErrInvalidQuery)
		}
	}
	if err := ValidateQuestion("What is the roof pitch?"); err != nil {
		t.Errorf("ValidateQuestion() error = %v, want nil", err)
	}
}
