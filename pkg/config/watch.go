package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pyromaniac/pyromaniac/pkg/logger"
)

// ChangeType represents the kind of change seen on a reference file
type ChangeType string

const (
	ChangeModified ChangeType = "modified"
	ChangeCreated  ChangeType = "created"
	ChangeRemoved  ChangeType = "removed"
)

// ImageChange describes a change to one of the reference files
type ImageChange struct {
	Path      string
	Type      ChangeType
	Timestamp time.Time
}

// ChangeCallback is called once per debounced change
type ChangeCallback func(ImageChange)

// ImageWatcher reports changes to the reference images while a station runs.
// The loaded geometry is never reloaded; the watcher only raises the alarm.
type ImageWatcher struct {
	dir            string
	files          map[string]bool
	logger         logger.Logger
	watcher        *fsnotify.Watcher
	callbacks      []ChangeCallback
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	pending        *ImageChange
	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	isWatching     bool
}

// NewImageWatcher creates a watcher for the named files inside dir
func NewImageWatcher(dir string, files []string, log logger.Logger) *ImageWatcher {
	names := make(map[string]bool, len(files))
	for _, f := range files {
		names[filepath.Base(f)] = true
	}

	return &ImageWatcher{
		dir:            dir,
		files:          names,
		logger:         log,
		debouncePeriod: 500 * time.Millisecond,
	}
}

// AddCallback registers a change callback
func (w *ImageWatcher) AddCallback(callback ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// SetDebouncePeriod sets the debounce period for file change events
func (w *ImageWatcher) SetDebouncePeriod(period time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debouncePeriod = period
}

// Start begins watching the image directory
func (w *ImageWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isWatching {
		return fmt.Errorf("already watching %s", w.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch image directory: %w", err)
	}

	w.watcher = watcher
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.isWatching = true

	go w.watchLoop(w.ctx, watcher)

	w.logger.Debug("Watching reference images", logger.WithField("dir", w.dir))
	return nil
}

// Stop stops watching
func (w *ImageWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isWatching {
		return nil
	}

	w.cancel()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}

	err := w.watcher.Close()
	w.watcher = nil
	w.isWatching = false
	return err
}

// IsWatching returns whether the watcher is running
func (w *ImageWatcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isWatching
}

func (w *ImageWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Image watcher panic recovered", logger.WithField("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Base(event.Name)] {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			w.debounce(ImageChange{
				Path:      event.Name,
				Type:      mapFsnotifyOp(event.Op),
				Timestamp: time.Now(),
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Image watcher error", logger.WithField("error", err))
		}
	}
}

func mapFsnotifyOp(op fsnotify.Op) ChangeType {
	switch {
	case op&fsnotify.Remove == fsnotify.Remove, op&fsnotify.Rename == fsnotify.Rename:
		return ChangeRemoved
	case op&fsnotify.Create == fsnotify.Create:
		return ChangeCreated
	default:
		return ChangeModified
	}
}

func (w *ImageWatcher) debounce(change ImageChange) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isWatching {
		return
	}

	w.pending = &change
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, w.flush)
}

func (w *ImageWatcher) flush() {
	w.mu.Lock()
	change := w.pending
	w.pending = nil
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if change == nil {
		return
	}

	w.logger.Warn("Reference image changed on disk",
		logger.WithField("path", change.Path),
		logger.WithField("change", change.Type))

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Image change callback panic recovered", logger.WithField("panic", r))
				}
			}()
			cb(*change)
		}()
	}
}
