// Package tasks turns the configuration into the named build tasks and binds
// them to the watch dispatcher.
//
// Everything a task needs (configuration, logger, reloader, command runner)
// hangs off one App constructed at startup and shared by every task; nothing
// is kept in package state.
package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/themesmith/internal/command"
	"github.com/conneroisu/themesmith/internal/config"
	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/livereload"
	"github.com/conneroisu/themesmith/internal/logging"
	"github.com/conneroisu/themesmith/internal/pipeline"
	"github.com/conneroisu/themesmith/internal/preprocess"
	"github.com/conneroisu/themesmith/internal/style"
)

// Runner runs the external tools: the style compiler reads from stdin and
// the touch command does not.
type Runner interface {
	command.Runner
	command.InputRunner
}

// Deps are the collaborators of an App. Zero values get defaults.
type Deps struct {
	// Root is the working directory relative paths resolve against.
	Root string
	// Logger defaults to a no-op logger.
	Logger logging.Logger
	// Reloader signals browsers. Nil disables live reload.
	Reloader pipeline.Reloader
	// Runner defaults to an exec runner in Root.
	Runner Runner
	// Compiler defaults to the configured LESS compiler.
	Compiler style.Compiler
}

// App is the application context shared by every task.
type App struct {
	Config *config.Config
	Logger logging.Logger
	Root   string
	Env    config.Environment

	// Reloader is signalled directly by the style and functions tasks.
	Reloader pipeline.Reloader
	// Coalescer folds destination changes into one reload; nil without a
	// Reloader.
	Coalescer *livereload.Coalescer

	Runner      Runner
	Compiler    style.Compiler
	Transformer *style.Transformer
	Tasks       *Registry

	errors *errors.ErrorHandler
}

// NewApp builds the application context and registers every task.
func NewApp(cfg *config.Config, deps Deps) (*App, error) {
	root := deps.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	runner := deps.Runner
	if runner == nil {
		runner = command.NewExecRunner(root)
	}

	compiler := deps.Compiler
	if compiler == nil {
		compiler = style.NewLessCompiler(cfg.Styles.Compiler, runner)
	}

	engines, err := style.Engines(cfg.Styles.Browsers)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "styles.browsers: "+err.Error())
	}

	a := &App{
		Config:      cfg,
		Logger:      logger,
		Root:        root,
		Env:         cfg.EnvType,
		Reloader:    deps.Reloader,
		Runner:      runner,
		Compiler:    compiler,
		Transformer: style.NewTransformer(engines),
		Tasks:       NewRegistry(),
		errors:      errors.NewErrorHandler(logger),
	}
	if deps.Reloader != nil {
		a.Coalescer = livereload.NewCoalescer(cfg.LiveReload.Delay, deps.Reloader)
	}

	a.registerTasks()
	return a, nil
}

// Close drops any pending coalesced reload.
func (a *App) Close() {
	if a.Coalescer != nil {
		a.Coalescer.Stop()
	}
}

// Run runs the named task once. Failures are logged by the error handler and
// returned; they never panic or exit.
func (a *App) Run(ctx context.Context, name string, paths ...string) error {
	task, ok := a.Tasks.Get(name)
	if !ok {
		return errors.NewConfigError(errors.ErrCodeUnknownTask,
			fmt.Sprintf("unknown task %q (available: %s)", name, strings.Join(a.Tasks.Names(), ", ")))
	}

	start := time.Now()
	a.Tasks.publish(Event{Type: EventTypeStarted, Task: name})
	op := logging.StartOperation(ctx, a.Logger.With("task", name), name)

	err := task.Run(ctx, paths...)
	if err != nil {
		a.errors.Handle(ctx, err)
		op.EndWithError(ctx, err)
		a.Tasks.publish(Event{Type: EventTypeFailed, Task: name, Duration: time.Since(start), Err: err})
		return err
	}

	op.End(ctx)
	a.Tasks.publish(Event{Type: EventTypeFinished, Task: name, Duration: time.Since(start)})
	return nil
}

// PreprocessContext is the directive context: the process environment,
// overlaid with preprocess.context, with NODE_ENV set to the build
// environment.
func (a *App) PreprocessContext() preprocess.Context {
	ctx := preprocess.Context{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			ctx[k] = v
		}
	}
	for k, v := range a.Config.Preprocess.Context {
		ctx[k] = v
	}
	ctx["NODE_ENV"] = a.Env.String()
	return ctx
}

// path resolves p against the root.
func (a *App) path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(a.Root, p)
}
