package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce collapses bursts of editor writes into a single reload.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a YAML catalog file into a Store whenever it changes.
// A file that fails to parse leaves the previous snapshot in place.
type Watcher struct {
	path      string
	store     *Store
	cacheSize int
	debounce  time.Duration
	log       *slog.Logger
	fsw       *fsnotify.Watcher
	checks    []Check

	// onReload is called after every reload attempt; used by tests and metrics.
	onReload func(*Snapshot, error)
}

// NewWatcher watches the directory containing path. Editors commonly replace
// files on save, so watching the file itself would lose the watch. Every
// reloaded snapshot must pass checks before it is installed.
func NewWatcher(path string, store *Store, cacheSize int, log *slog.Logger, checks ...Check) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolving catalog path: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:      abs,
		store:     store,
		cacheSize: cacheSize,
		debounce:  defaultDebounce,
		log:       log,
		fsw:       fsw,
		checks:    checks,
	}, nil
}

// OnReload registers a callback invoked after each reload attempt.
func (w *Watcher) OnReload(fn func(*Snapshot, error)) {
	w.onReload = fn
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("catalog watcher error", "error", err)

		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	snap, err := Reload(ctx, FileSource{Path: w.path}, w.store, w.cacheSize, w.checks...)
	if err != nil {
		w.log.Warn("catalog reload failed; keeping previous snapshot", "path", w.path, "error", err)
	} else {
		w.log.Info("catalog reloaded", "path", w.path, "movements", snap.Len(), "version", snap.Version())
	}
	if w.onReload != nil {
		w.onReload(snap, err)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
