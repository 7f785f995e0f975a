package ingestion

import (
	"errors"
	"fmt"
	"time"
)

// DocumentResult records what happened to one input file.
type DocumentResult struct {
	Path     string
	Pages    int
	Chunks   int
	Images   int
	Duration time.Duration
	Err      error

	// Skipped is set when the document was already in the index and was
	// left untouched.
	Skipped bool

	// UnreadablePages lists pages indexed without text because their
	// content could not be read.
	UnreadablePages []int
}

// Report summarises an ingestion run. Documents are in input order.
type Report struct {
	RunID     string
	Started   time.Time
	Finished  time.Time
	Documents []DocumentResult
}

// Succeeded returns the number of documents committed to the index.
func (r *Report) Succeeded() int {
	n := 0
	for i := range r.Documents {
		if r.Documents[i].Err == nil && !r.Documents[i].Skipped {
			n++
		}
	}
	return n
}

// Skipped returns the number of documents that were already indexed.
func (r *Report) Skipped() int {
	n := 0
	for i := range r.Documents {
		if r.Documents[i].Skipped {
			n++
		}
	}
	return n
}

// Failed returns the results of documents that were not indexed.
func (r *Report) Failed() []DocumentResult {
	var failed []DocumentResult
	for _, d := range r.Documents {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}

// Chunks returns the number of chunks committed across all documents.
func (r *Report) Chunks() int {
	n := 0
	for i := range r.Documents {
		n += r.Documents[i].Chunks
	}
	return n
}

// Images returns the number of image references committed across all documents.
func (r *Report) Images() int {
	n := 0
	for i := range r.Documents {
		n += r.Documents[i].Images
	}
	return n
}

// Err joins the per-document errors, or returns nil when every document succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, d := range r.Documents {
		if d.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Path, d.Err))
		}
	}
	return errors.Join(errs...)
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
