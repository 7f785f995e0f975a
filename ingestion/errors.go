package ingestion

import "errors"

var (
	// ErrIndexRequired is returned when an index is not provided.
	ErrIndexRequired = errors.New("index required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrNotADirectory is returned when IngestDirectory is given something other than a directory.
	ErrNotADirectory = errors.New("not a directory")
)
