// Package watcher turns fsnotify notifications into a debounced stream of
// add, change and unlink events delivered one at a time.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/apex/internal/logging"
)

// EventType is the kind of change observed for a file.
type EventType string

const (
	EventAdd    EventType = "add"
	EventChange EventType = "change"
	EventUnlink EventType = "unlink"
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	return string(e)
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	Path string
}

// FileFilter determines if a file should be reported
type FileFilter func(path string) bool

// ChangeHandler handles one change event. Handlers never run concurrently.
type ChangeHandler func(ctx context.Context, event ChangeEvent) error

// skipDirs are never watched.
var skipDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
}

// FileWatcher watches directory trees for file changes
type FileWatcher struct {
	watcher *fsnotify.Watcher
	logger  logging.Logger

	mutex    sync.RWMutex
	filters  []FileFilter
	handlers []ChangeHandler

	debouncer *debouncer
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &FileWatcher{
		watcher:   w,
		logger:    logger.WithComponent("watcher"),
		debouncer: newDebouncer(debounceDelay),
	}, nil
}

// AddFilter adds a file filter; a file is reported only when all filters
// accept it.
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run delivers events to the handlers until ctx is done, then releases the
// underlying watcher.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()
	defer fw.debouncer.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleFsnotifyEvent(ctx, event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn(ctx, err, "File watcher error")

		case <-fw.debouncer.ready:
			for _, event := range fw.debouncer.flush() {
				fw.dispatch(ctx, event)
			}
		}
	}
}

// Stop releases the underlying watcher without waiting for Run.
func (fw *FileWatcher) Stop() error {
	fw.debouncer.stop()
	return fw.watcher.Close()
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	path := filepath.Clean(event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			fw.addDirectory(ctx, path)
			return
		}
	}

	if !fw.accepts(path) {
		return
	}

	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventAdd
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		eventType = EventUnlink
	default:
		eventType = EventChange
	}
	fw.debouncer.add(path, eventType)
}

// addDirectory starts watching a newly created directory. Files created in
// it before the watch was registered are reported as added.
func (fw *FileWatcher) addDirectory(ctx context.Context, dir string) {
	if skipDirs[filepath.Base(dir)] {
		return
	}
	if err := fw.AddRecursive(dir); err != nil {
		fw.logger.Warn(ctx, err, "Failed to watch new directory", "path", dir)
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fw.accepts(path) {
			fw.debouncer.add(path, EventAdd)
		}
		return nil
	})
}

func (fw *FileWatcher) accepts(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) dispatch(ctx context.Context, event ChangeEvent) {
	fw.mutex.RLock()
	handlers := fw.handlers
	fw.mutex.RUnlock()

	fw.logger.Debug(ctx, "File changed", "type", event.Type, "path", event.Path)
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			fw.logger.Error(ctx, err, "File watcher handler error", "path", event.Path)
		}
	}
}

// debouncer coalesces rapid events per path. The final event type is decided
// when the quiet period ends: a missing file is an unlink, a file first seen
// as created is an add, anything else is a change.
type debouncer struct {
	delay time.Duration
	ready chan struct{}

	mutex   sync.Mutex
	timer   *time.Timer
	pending map[string]EventType
	order   []string
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		ready:   make(chan struct{}, 1),
		pending: make(map[string]EventType),
	}
}

func (d *debouncer) add(path string, eventType EventType) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if first, ok := d.pending[path]; !ok {
		d.pending[path] = eventType
		d.order = append(d.order, path)
	} else if first == EventUnlink && eventType == EventAdd {
		// editors that save by delete and recreate
		d.pending[path] = EventChange
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		select {
		case d.ready <- struct{}{}:
		default:
		}
	})
}

func (d *debouncer) flush() []ChangeEvent {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	events := make([]ChangeEvent, 0, len(d.order))
	for _, path := range d.order {
		first := d.pending[path]
		eventType := EventChange
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if first == EventAdd {
				// created and removed within one window
				continue
			}
			eventType = EventUnlink
		} else if first == EventAdd {
			eventType = EventAdd
		}
		events = append(events, ChangeEvent{Type: eventType, Path: path})
	}

	d.pending = make(map[string]EventType)
	d.order = d.order[:0]
	return events
}

func (d *debouncer) stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Common file filters

// GoFilter accepts Go source files.
func GoFilter(path string) bool {
	return filepath.Ext(path) == ".go"
}

// NoTestFilter rejects Go test files.
func NoTestFilter(path string) bool {
	return !strings.HasSuffix(filepath.Base(path), "_test.go")
}

// NoHiddenFilter rejects dot files and editor backups.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}

// UnderFilter accepts files below one of the given directories.
func UnderFilter(dirs ...string) FileFilter {
	return func(path string) bool {
		for _, dir := range dirs {
			rel, err := filepath.Rel(dir, path)
			if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}
