package ingestion

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before ingesting the changed files.
const DefaultDebounce = 2 * time.Second

// Watcher ingests supported files that are created or modified under a directory.
type Watcher struct {
	pipeline *Pipeline
	dir      string
	debounce time.Duration
	onReport func(*Report)
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before changed files are ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReportHandler registers a function called with the report of every
// ingestion run the watcher triggers.
func WithReportHandler(fn func(*Report)) WatcherOption {
	return func(w *Watcher) {
		w.onReport = fn
	}
}

// NewWatcher creates a watcher feeding pipeline from dir.
func NewWatcher(pipeline *Pipeline, dir string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		pipeline: pipeline,
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   slog.Default().With("component", "watcher", "dir", dir),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Files already present are not ingested;
// use Pipeline.IngestDirectory for that.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watching for document changes", "debounce", w.debounce)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.isNewDirectory(event) {
				if err := w.addTree(fsw, event.Name); err != nil {
					w.logger.Warn("cannot watch directory", "path", event.Name, "err", err)
				}
				// files may have landed before the watch was in place
				files, _ := w.pipeline.SupportedFiles(event.Name)
				for _, path := range files {
					pending[path] = struct{}{}
				}
				if len(files) > 0 {
					timer.Reset(w.debounce)
				}
				continue
			}
			if path, ok := w.handleEvent(event); ok {
				pending[path] = struct{}{}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "err", err)

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]struct{})
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	paths := make([]string, 0, len(pending))
	for path := range pending {
		// a file may be gone again by the time the quiet period ends
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return
	}
	slices.Sort(paths)

	report, err := w.pipeline.IngestFiles(ctx, paths)
	if err != nil {
		w.logger.Error("ingestion run failed", "err", err)
	}
	if report != nil && w.onReport != nil {
		w.onReport(report)
	}
}

// handleEvent returns the path to ingest for a file event, if any.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if rel, err := filepath.Rel(w.dir, event.Name); err == nil && isHidden(rel) {
		return "", false
	}
	if !w.pipeline.extractor.Supports(filepath.Ext(event.Name)) {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return "", false
	}
	return event.Name, true
}

func (w *Watcher) isNewDirectory(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) {
		return false
	}
	info, err := os.Stat(event.Name)
	return err == nil && info.IsDir()
}

// addTree watches root and every non-hidden directory below it.
// fsnotify watches are not recursive.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(w.dir, path); relErr == nil && rel != "." && isHidden(rel) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
