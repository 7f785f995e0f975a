package reembed

import "errors"

var (
	// ErrSameIndex is returned when the source and target are the same index.
	ErrSameIndex = errors.New("source and target index must differ")

	// ErrTargetNotEmpty is returned when the target index already holds entries.
	ErrTargetNotEmpty = errors.New("target index is not empty")

	// ErrIndexRequired is returned when an index is not provided.
	ErrIndexRequired = errors.New("index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)
