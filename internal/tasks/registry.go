package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Func runs one task. paths holds the changed files when the task was
// triggered by the watcher and is empty for a direct invocation.
type Func func(ctx context.Context, paths ...string) error

// Task is a named unit of work.
type Task struct {
	Name        string
	Description string
	// Build marks tasks that produce output and are part of a full build.
	Build bool
	Run   Func
	order int
}

// EventType is the kind of a task run event.
type EventType int

const (
	EventTypeStarted EventType = iota
	EventTypeFinished
	EventTypeFailed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeStarted:
		return "started"
	case EventTypeFinished:
		return "finished"
	case EventTypeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event reports the progress of one task run.
type Event struct {
	Type      EventType
	Task      string
	Duration  time.Duration
	Err       error
	Timestamp time.Time
}

// Registry holds the tasks of an App and fans out their run events.
type Registry struct {
	tasks    map[string]*Task
	mutex    sync.RWMutex
	watchers []chan Event
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tasks:    make(map[string]*Task),
		watchers: make([]chan Event, 0),
	}
}

// Register adds or replaces a task.
func (r *Registry) Register(task Task) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, ok := r.tasks[task.Name]; ok {
		task.order = existing.order
	} else {
		task.order = len(r.tasks)
	}
	r.tasks[task.Name] = &task
}

// Get retrieves a task by name.
func (r *Registry) Get(name string) (*Task, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	task, exists := r.tasks[name]
	return task, exists
}

// All returns every task in registration order.
func (r *Registry) All() []*Task {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]*Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		result = append(result, task)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].order < result[j].order })
	return result
}

// Names returns every task name in registration order.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, 0, len(all))
	for _, t := range all {
		names = append(names, t.Name)
	}
	return names
}

// Count returns the number of registered tasks.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.tasks)
}

// Watch returns a channel that receives task run events. Events are dropped
// for a watcher whose buffer is full.
func (r *Registry) Watch() <-chan Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *Registry) UnWatch(ch <-chan Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

func (r *Registry) publish(event Event) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	event.Timestamp = time.Now()
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
