// Package watcher binds filesystem change events to handlers. Each
// subscription pairs a glob set with one handler; every matching event runs
// its handler in a goroutine of its own, so a slow handler never delays
// another subscription or a later event for the same one.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/themesmith/internal/glob"
	"github.com/conneroisu/themesmith/internal/logging"
)

// Event is one filesystem change.
type Event struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// Deleted reports whether the file no longer exists at Path.
func (e Event) Deleted() bool {
	return e.Type == EventTypeDeleted || e.Type == EventTypeRenamed
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Handler reacts to one change event.
type Handler func(ctx context.Context, ev Event)

// Filter decides whether a path is considered at all.
type Filter func(path string) bool

type subscription struct {
	name    string
	globs   *glob.Set
	handler Handler
}

// Dispatcher owns one fsnotify watcher shared by every subscription.
type Dispatcher struct {
	watcher *fsnotify.Watcher
	logger  logging.Logger

	subs    []subscription
	bases   []string
	watched map[string]struct{}
	filters []Filter
	mu      sync.RWMutex

	handlers sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Paths inside .git and editor swap
// files are filtered out.
func NewDispatcher(logger logging.Logger) (*Dispatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Dispatcher{
		watcher: w,
		logger:  logger.WithComponent("watcher"),
		watched: make(map[string]struct{}),
		filters: []Filter{NoGitFilter, NoSwapFilter},
	}, nil
}

// Subscribe binds globs to handler and starts watching the static base of
// every include pattern. A base that does not exist yet is picked up when
// the directory is created.
func (d *Dispatcher) Subscribe(name string, globs *glob.Set, handler Handler) error {
	d.mu.Lock()
	d.subs = append(d.subs, subscription{name: name, globs: globs, handler: handler})
	d.mu.Unlock()

	for _, base := range globs.Bases() {
		d.mu.Lock()
		d.bases = append(d.bases, base)
		d.mu.Unlock()

		if err := d.watchNearest(base); err != nil {
			return err
		}
	}
	return nil
}

// Subscriptions returns the subscription names in the order they were made.
func (d *Dispatcher) Subscriptions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.subs))
	for _, s := range d.subs {
		names = append(names, s.name)
	}
	return names
}

// watchNearest watches base recursively, or its closest existing ancestor
// when base is missing.
func (d *Dispatcher) watchNearest(base string) error {
	dir := base
	for {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			if dir == base {
				return d.addRecursive(dir)
			}
			return d.add(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil
		}
		dir = parent
	}
}

func (d *Dispatcher) add(dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.watched[dir]; ok {
		return nil
	}
	if err := d.watcher.Add(dir); err != nil {
		return err
	}
	d.watched[dir] = struct{}{}
	return nil
}

// addRecursive watches root and every directory below it.
func (d *Dispatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if !NoGitFilter(path) {
			return filepath.SkipDir
		}
		return d.add(path)
	})
}

// Run dispatches events until ctx is cancelled, then waits for handlers
// already running and closes the watcher.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.watcher.Close()
	defer d.handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			d.handleFsnotifyEvent(ctx, event)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (d *Dispatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	d.mu.RLock()
	filters := d.filters
	d.mu.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		// Chmod: touch only updates timestamps and still counts as a change.
		eventType = EventTypeModified
	}

	ev := Event{Type: eventType, Path: event.Name}

	if info, err := os.Stat(event.Name); err == nil {
		if info.IsDir() {
			if eventType == EventTypeCreated {
				d.directoryCreated(ctx, event.Name)
			}
			return
		}
		ev.ModTime = info.ModTime()
		ev.Size = info.Size()
	}

	if ev.Deleted() {
		d.mu.Lock()
		delete(d.watched, event.Name)
		d.mu.Unlock()
	}

	d.Dispatch(ctx, ev)
}

// directoryCreated starts watching a new directory that lies below or above
// a subscribed base and reports the files already inside it, which may have
// been written before the watch was in place.
func (d *Dispatcher) directoryCreated(ctx context.Context, dir string) {
	if !d.relevant(dir) {
		return
	}
	if err := d.addRecursive(dir); err != nil {
		d.logger.Warn(ctx, err, "Cannot watch new directory", "path", dir)
		return
	}

	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		d.Dispatch(ctx, Event{Type: EventTypeCreated, Path: path})
		return nil
	})
}

func (d *Dispatcher) relevant(dir string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, base := range d.bases {
		if within(dir, base) || within(base, dir) {
			return true
		}
	}
	return false
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Dispatch runs the handler of every subscription whose globs match the
// event path, each in its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()

	for _, s := range subs {
		if !s.globs.Match(ev.Path) {
			continue
		}
		d.logger.Debug(ctx, "File changed", "watch", s.name, "path", ev.Path, "type", ev.Type.String())

		d.handlers.Add(1)
		go func(s subscription) {
			defer d.handlers.Done()
			s.handler(ctx, ev)
		}(s)
	}
}

// Close stops watching without waiting for running handlers.
func (d *Dispatcher) Close() error {
	return d.watcher.Close()
}

// NoGitFilter drops paths inside a .git directory.
func NoGitFilter(path string) bool {
	p := filepath.ToSlash(path)
	return !strings.HasPrefix(p, ".git/") && !strings.Contains(p, "/.git/") && !strings.HasSuffix(p, "/.git")
}

// NoSwapFilter drops editor swap and backup files.
func NoSwapFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp") &&
		!strings.HasSuffix(base, ".swx") &&
		!strings.HasPrefix(base, ".#")
}
