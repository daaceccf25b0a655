package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// ReloadEvent signals that the watched config file changed on disk.
type ReloadEvent struct {
	Path      string
	Timestamp time.Time
}

// Watcher watches a config file for changes and emits reload events.
//
// It watches the file's parent directory rather than the file itself:
// most editors replace the file on save, which would otherwise drop the
// watch on the old inode.
type Watcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	events     chan ReloadEvent
	stop       chan struct{}
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(configPath string) (*Watcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		configPath: absPath,
		watcher:    fw,
		events:     make(chan ReloadEvent, 10),
		stop:       make(chan struct{}),
	}, nil
}

// Start begins watching for config file changes.
//
// Events are delivered on the Events() channel from a background
// goroutine. Call Stop() to clean up resources.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching config directory %s: %w", dir, err)
	}

	go w.processEvents(ctx)

	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Events returns the channel for receiving reload events.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Non-blocking send: a pending event already signals reload.
			select {
			case w.events <- ReloadEvent{Path: w.configPath, Timestamp: time.Now()}:
			default:
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
