package livereload

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/themesmith/internal/pipeline"
)

// DefaultDelay is the coalescing window.
const DefaultDelay = 200 * time.Millisecond

// Coalescer folds bursts of changed paths into a single reload. The first
// Trigger opens a window of the configured delay and every later Trigger
// restarts it; when the window elapses one Reload is issued carrying every
// path collected, in first-seen order.
type Coalescer struct {
	delay    time.Duration
	reloader pipeline.Reloader

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending []string
	seen    map[string]struct{}
	stopped bool
	firing  sync.WaitGroup
}

// NewCoalescer creates a coalescer. A non-positive delay uses DefaultDelay.
func NewCoalescer(delay time.Duration, reloader pipeline.Reloader) *Coalescer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Coalescer{
		delay:    delay,
		reloader: reloader,
		seen:     make(map[string]struct{}),
	}
}

// Delay returns the coalescing window.
func (c *Coalescer) Delay() time.Duration {
	return c.delay
}

// Trigger adds paths to the pending reload and restarts the window.
func (c *Coalescer) Trigger(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || len(paths) == 0 {
		return
	}

	for _, p := range paths {
		if _, ok := c.seen[p]; ok {
			continue
		}
		c.seen[p] = struct{}{}
		c.pending = append(c.pending, p)
	}

	if c.timer != nil && c.timer.Stop() {
		c.timer.Reset(c.delay)
		return
	}
	c.gen++
	gen := c.gen
	c.firing.Add(1)
	c.timer = time.AfterFunc(c.delay, func() { c.fire(gen) })
}

// Reload lets a Coalescer stand in for a pipeline.Reloader.
func (c *Coalescer) Reload(_ context.Context, paths ...string) {
	c.Trigger(paths...)
}

func (c *Coalescer) fire(gen uint64) {
	defer c.firing.Done()

	paths := c.take(gen)
	if len(paths) > 0 {
		c.reloader.Reload(context.Background(), paths...)
	}
}

func (c *Coalescer) take(gen uint64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := c.pending
	c.pending = nil
	c.seen = make(map[string]struct{})
	if gen == c.gen {
		c.timer = nil
	}
	return paths
}

// Flush issues the pending reload immediately.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.timer == nil || !c.timer.Stop() {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	c.fire(gen)
}

// Stop drops any pending reload, waits for a reload already in progress and
// ignores later triggers.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil && c.timer.Stop() {
		c.firing.Done()
	}
	c.timer = nil
	c.pending = nil
	c.mu.Unlock()

	c.firing.Wait()
}
