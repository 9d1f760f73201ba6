// Package watcher evicts cache entries of canonical report files that were
// changed outside the calculator.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mohamedkhairy/feedmix/internal/models"
	"github.com/mohamedkhairy/feedmix/pkg/logger"
)

// Invalidator removes cache entries
type Invalidator interface {
	Invalidate(date, kind string) int
	// Matches reports whether the entries of date were cached from the
	// file as it is now, as after the calculator's own saves
	Matches(date, kind string) bool
}

// ScanResult is the outcome of one scan
type ScanResult struct {
	Invalidated  []string `json:"invalidated"`
	TrackedFiles int      `json:"tracked_files"`
}

// Option configures a Watcher
type Option func(*Watcher)

// WithInterval sets how often Run rescans without a file event
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounce sets how long Run waits for a burst of events to settle
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher tracks the modification time of every canonical report file
type Watcher struct {
	dir      string
	cache    Invalidator
	interval time.Duration
	debounce time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

// New creates a watcher and records the current state of dir
func New(reportsDir string, cache Invalidator, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      reportsDir,
		cache:    cache,
		interval: time.Minute,
		debounce: 500 * time.Millisecond,
		seen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}

	for path, f := range w.list() {
		w.seen[path] = f.mtime
	}
	logger.Info("Report watcher seeded", logger.Path(reportsDir), logger.Int("tracked_files", len(w.seen)))
	return w
}

type reportFile struct {
	date  string
	mtime time.Time
}

func (w *Watcher) list() map[string]reportFile {
	files := make(map[string]reportFile)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to list reports directory", logger.Path(w.dir), logger.ErrorField(err))
		}
		return files
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := models.ParseReportFileName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			logger.Warn("Skipping report file", logger.String("file", e.Name()), logger.ErrorField(err))
			continue
		}
		files[filepath.Join(w.dir, e.Name())] = reportFile{date: date, mtime: info.ModTime()}
	}
	return files
}

// Scan compares every report file with its remembered mtime and evicts the
// cache entries of changed or new files, unless the cache already holds the
// file's current content. Removed files stop being tracked.
func (w *Watcher) Scan() ScanResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.list()
	invalidated := make([]string, 0)

	for path, f := range current {
		prev, known := w.seen[path]
		if known && prev.Equal(f.mtime) {
			continue
		}
		w.seen[path] = f.mtime
		if w.cache.Matches(f.date, models.ReportKindDailyConsumption) {
			logger.Debug("Report change already cached", logger.Date(f.date), logger.Path(path))
			continue
		}
		if w.cache.Invalidate(f.date, models.ReportKindDailyConsumption) > 0 {
			invalidated = append(invalidated, f.date)
		}
	}
	for path := range w.seen {
		if _, ok := current[path]; !ok {
			delete(w.seen, path)
		}
	}

	sort.Strings(invalidated)
	if len(invalidated) > 0 {
		watcherInvalidations.Add(float64(len(invalidated)))
		logger.Info("Cache invalidated for changed reports",
			logger.Any("dates", invalidated),
			logger.Int("tracked_files", len(w.seen)),
		)
	}
	return ScanResult{Invalidated: invalidated, TrackedFiles: len(w.seen)}
}

// Tracked returns the number of files being tracked
func (w *Watcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// Run scans after every settled burst of file events in the reports
// directory, and on a fixed interval. It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	interval := time.NewTicker(w.interval)
	defer interval.Stop()

	settle := time.NewTicker(w.debounceTick())
	defer settle.Stop()

	var lastEvent time.Time
	logger.Info("Report watcher started",
		logger.Path(w.dir),
		logger.Duration("interval", w.interval),
		logger.Duration("debounce", w.debounce),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Report watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if _, isReport := models.ParseReportFileName(filepath.Base(event.Name)); !isReport {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				lastEvent = time.Now()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error", logger.ErrorField(err))

		case <-settle.C:
			if !lastEvent.IsZero() && time.Since(lastEvent) >= w.debounce {
				lastEvent = time.Time{}
				w.Scan()
			}

		case <-interval.C:
			w.Scan()
		}
	}
}

func (w *Watcher) debounceTick() time.Duration {
	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return tick
}
