// Package inbox imports backup files dropped into a directory.
//
// Every *.json file created or written in the directory is imported once
// its writes settle, then renamed to <name>.imported, or to <name>.failed
// when it cannot be decoded or imported.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"budgetsync/internal/backup"
	"budgetsync/internal/core"
	"budgetsync/internal/scheduler"
)

const (
	ImportedSuffix = ".imported"
	FailedSuffix   = ".failed"
)

// Importer merges a decoded payload into the authoritative store.
type Importer interface {
	Import(ctx context.Context, p backup.Payload) (core.Report, error)
}

type Watcher struct {
	dir      string
	importer Importer
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
}

func New(dir string, importer Importer, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		dir:      dir,
		importer: importer,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		ready:    make(chan string, 64),
	}
}

// Run watches the directory until ctx is done. Files already present when
// Run starts are imported first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create inbox %s: %w", w.dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", w.dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("scan inbox: %w", err)
	}
	for _, path := range existing {
		w.schedule(ctx, path)
	}

	slog.InfoContext(ctx, "Import inbox watching", "dir", w.dir)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isCandidate(event) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Inbox watcher error", "error", err)

		case path := <-w.ready:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			_, err := w.ProcessFile(ctx, path)
			if errors.Is(err, scheduler.ErrBusy) {
				slog.InfoContext(ctx, "Sync in progress, import postponed", "file", path)
				w.schedule(ctx, path)
			}
		}
	}
}

func isCandidate(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".json")
}

// schedule (re)arms the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// ProcessFile imports one backup file and renames it according to the
// outcome. A busy scheduler leaves the file in place for a later attempt.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (core.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Report{}, fmt.Errorf("read %s: %w", path, err)
	}

	p, stats, err := backup.Decode(data)
	if err != nil {
		slog.ErrorContext(ctx, "Inbox file is not a backup", "file", path, "error", err)
		return core.Report{}, errors.Join(err, markAs(path, FailedSuffix))
	}
	if dropped := stats.SkippedCategories + stats.SkippedTransactions; dropped > 0 {
		slog.WarnContext(ctx, "Malformed entries skipped", "file", path, "count", dropped)
	}

	report, err := w.importer.Import(ctx, p)
	if errors.Is(err, scheduler.ErrBusy) {
		return report, err
	}
	if err != nil {
		slog.ErrorContext(ctx, "Inbox import failed", "file", path, "error", err, "report", report.String())
		return report, errors.Join(err, markAs(path, FailedSuffix))
	}

	slog.InfoContext(ctx, "Inbox file imported", "file", path, "report", report.String())
	return report, markAs(path, ImportedSuffix)
}

func markAs(path, suffix string) error {
	if err := os.Rename(path, path+suffix); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
