// Package ingestion builds the vector index from source files.
//
// A Pipeline prepares each file on a bounded worker pool and commits the
// resulting entries and image references to the index. Documents are processed
// concurrently but committed in input order, so the insertion order of the index
// (which breaks ties between equal search scores) only depends on the file list.
//
// A failing document never aborts a run. Its error is recorded in the Report and
// the remaining documents continue.
//
// A Watcher keeps an index current by ingesting files that appear or change in a
// directory.
package ingestion
