package tasks

import (
	"context"
	"fmt"

	"github.com/conneroisu/themesmith/internal/glob"
	"github.com/conneroisu/themesmith/internal/watcher"
)

// Binding ties one watched glob set to a task.
type Binding struct {
	// Watch names the glob set, e.g. "watch.jade".
	Watch    string
	Patterns []string
	Task     string
	// SkipDeleted ignores events for files that no longer exist.
	SkipDeleted bool
}

// Bindings returns the watch bindings of the configuration.
func (a *App) Bindings() []Binding {
	cfg := a.Config
	return []Binding{
		{Watch: "watch.jade", Patterns: cfg.Watch.Jade, Task: TaskJade},
		{Watch: "watch.js", Patterns: cfg.Watch.JS, Task: TaskJS},
		{Watch: "watch.less", Patterns: cfg.Watch.Less, Task: TaskLess},
		{Watch: "watch.less_vendor", Patterns: cfg.Watch.LessVendor, Task: TaskLessVendor},
		{Watch: "watch.php", Patterns: cfg.Watch.PHP, Task: TaskFunctions},
		{Watch: "dist.php", Patterns: cfg.Dist.PHP, Task: TaskRefresh},
		{Watch: "watch.pp", Patterns: cfg.Watch.PP, Task: TaskPP, SkipDeleted: true},
		{Watch: "watch.all_php", Patterns: cfg.Watch.AllPHP, Task: TaskAllPHP, SkipDeleted: true},
	}
}

// Install subscribes every binding on d. Each event runs its task in its own
// goroutine; failures are logged and never stop the dispatcher.
func (a *App) Install(d *watcher.Dispatcher) error {
	for _, b := range a.Bindings() {
		if len(b.Patterns) == 0 {
			continue
		}
		globs, err := glob.NewSet(a.Root, b.Patterns...)
		if err != nil {
			return fmt.Errorf("%s: %w", b.Watch, err)
		}
		if err := d.Subscribe(b.Watch, globs, a.handler(b)); err != nil {
			return fmt.Errorf("watching %s: %w", b.Watch, err)
		}
		a.Logger.Debug(context.Background(), "Watching", "watch", b.Watch, "task", b.Task, "patterns", b.Patterns)
	}
	return nil
}

func (a *App) handler(b Binding) watcher.Handler {
	return func(ctx context.Context, ev watcher.Event) {
		if b.SkipDeleted && ev.Deleted() {
			return
		}
		_ = a.Run(ctx, b.Task, ev.Path)
	}
}
