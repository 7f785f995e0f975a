package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports batch progress of a rebuild as a single
// carriage-return updated line.
type ProgressTracker struct {
	writer         io.Writer
	unit           string
	total          int
	current        int
	batches        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker for total items that prints whenever
// at least reportInterval items completed since the last line.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		unit:           "chunks",
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.batches = 0
	p.lastReported = 0
}

// BatchDone records a finished batch of n items.
func (p *ProgressTracker) BatchDone(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.batches++
	p.current = min(p.current+n, p.total)
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Finish prints the final line. The count is left as is, so an interrupted
// run shows how far it got.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Done returns the number of completed items and batches.
func (p *ProgressTracker) Done() (items, batches int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.batches
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current line. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(p.current) / s
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rBatch %d: %d/%d %s (%.1f%%) - %.1f %s/s",
		p.batches, p.current, p.total, p.unit, percentage, rate, p.unit)
}
