// Package notify reports changes to a file on disk. Editors often replace a
// file instead of writing it in place, so the parent directory is watched and
// events are filtered by name.
package notify

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the bursts of events a single save produces.
const DefaultDebounce = 200 * time.Millisecond

// FileWatcher calls a callback after the watched file changes.
type FileWatcher struct {
	path     string
	debounce time.Duration
	onChange func(path string)
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher creates a watcher for path. A debounce of zero uses
// DefaultDebounce.
func NewFileWatcher(path string, debounce time.Duration, onChange func(path string), logger *slog.Logger) *FileWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Call Stop to clean up.
func (fw *FileWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("notify: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(fw.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("notify: watch %s: %w", fw.path, err)
	}
	fw.watcher = w

	go fw.loop()
	fw.logger.Info("watching file for changes", "path", fw.path)
	return nil
}

// Stop shuts down the watcher and waits for the event loop to exit. A
// pending debounced callback is dropped.
func (fw *FileWatcher) Stop() {
	if fw.watcher == nil {
		return
	}
	fw.stopOnce.Do(func() { _ = fw.watcher.Close() })
	<-fw.done
}

func (fw *FileWatcher) loop() {
	defer close(fw.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case evt, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != fw.path || !evt.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fw.debounce)
			} else {
				timer.Reset(fw.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			fw.onChange(fw.path)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", "path", fw.path, "error", err)
		}
	}
}
