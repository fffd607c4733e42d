package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and passes every valid result to fn.
// Invalid files are logged and skipped. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, fn func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	w := &fileWatcher{path: path, fn: fn, watcher: watcher}
	go w.loop(ctx)
	slog.Info("watching config for changes", "path", path)
	return nil
}

type fileWatcher struct {
	path    string
	fn      func(Config)
	watcher *fsnotify.Watcher

	debounceMu sync.Mutex
	debounce   *time.Timer
	stopped    bool
}

func (w *fileWatcher) loop(ctx context.Context) {
	defer w.stop()
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config fsnotify error", "error", err)
		}
	}
}

func (w *fileWatcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.stopped {
		return
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *fileWatcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("ignoring invalid config change", "path", w.path, "error", err)
		return
	}
	slog.Info("config reloaded", "path", w.path)
	w.fn(cfg)
}

func (w *fileWatcher) stop() {
	w.debounceMu.Lock()
	w.stopped = true
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounceMu.Unlock()

	w.watcher.Close()
}
