// Package reembed rebuilds a vector index with a different embedding model.
//
// Every chunk of a source index is copied with its metadata into a new, empty
// target index with vectors produced by the new embedder.
// The source is only read, so a failed run leaves it intact and the target can
// simply be discarded. Batches are retried with exponential backoff and
// progress is reported to a writer.
package reembed
