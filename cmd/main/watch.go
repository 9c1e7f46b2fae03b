package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// libraryWatcher reloads the library and partials when files under the
// library root change. Bursts of events collapse into one reload.
type libraryWatcher struct {
	fsw      *fsnotify.Watcher
	root     string
	reload   func()
	logger   *slog.Logger
	debounce time.Duration
}

func newLibraryWatcher(root string, reload func(), logger *slog.Logger) (*libraryWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &libraryWatcher{fsw: fsw, root: root, reload: reload, logger: logger, debounce: watchDebounce}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *libraryWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable directories are skipped
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// relevant drops editor swap files and chmod-only events.
func relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(ev.Name)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}

// Run blocks until ctx is done and closes the underlying watcher.
func (w *libraryWatcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addTree(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.logger.Info("Library changed on disk, reloading", "root", w.root)
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Library watcher error", "error", err)
		}
	}
}
