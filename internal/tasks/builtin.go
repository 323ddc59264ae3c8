package tasks

import (
	"context"
	"path/filepath"
	"regexp"

	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/glob"
	"github.com/conneroisu/themesmith/internal/pipeline"
	"github.com/conneroisu/themesmith/internal/preprocess"
	"github.com/conneroisu/themesmith/internal/script"
	"github.com/conneroisu/themesmith/internal/style"
	"github.com/conneroisu/themesmith/internal/template"
)

// Task names.
const (
	TaskLessVendor = "less_vendor"
	TaskLess       = "less"
	TaskJade       = "jade"
	TaskJS         = "js"
	TaskFunctions  = "functions"
	TaskRefresh    = "refresh"
	TaskPP         = "pp"
	TaskAllPHP     = "all_php"
)

var (
	phpTags      = regexp.MustCompile(`(<\?php)|(\?>)`)
	pppExtension = regexp.MustCompile(`\.ppp`)
)

func (a *App) registerTasks() {
	a.Tasks.Register(Task{Name: TaskLessVendor, Description: "compile the vendor stylesheet", Build: true, Run: a.pipelineTask(a.LessVendor)})
	a.Tasks.Register(Task{Name: TaskLess, Description: "compile the main stylesheet", Build: true, Run: a.pipelineTask(a.Less)})
	a.Tasks.Register(Task{Name: TaskJade, Description: "render templates", Build: true, Run: a.pipelineTask(a.Jade)})
	a.Tasks.Register(Task{Name: TaskJS, Description: "minify and preprocess scripts", Build: true, Run: a.pipelineTask(a.JS)})
	a.Tasks.Register(Task{Name: TaskFunctions, Description: "assemble the functions file", Build: true, Run: a.pipelineTask(a.Functions)})
	a.Tasks.Register(Task{Name: TaskRefresh, Description: "reload browsers after destination changes", Run: a.refresh})
	a.Tasks.Register(Task{Name: TaskPP, Description: "strip PHP tags from function fragments", Run: a.eachPath(TaskPP, a.Fragment)})
	a.Tasks.Register(Task{Name: TaskAllPHP, Description: "copy PHP files to the destination", Run: a.eachPath(TaskAllPHP, a.CopyPHP)})
}

func (a *App) pipelineTask(build func() (*pipeline.Pipeline, error)) Func {
	return func(ctx context.Context, _ ...string) error {
		p, err := build()
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeGlobInvalid, err.Error())
		}
		result, err := p.Run(ctx, a.Env)
		if err != nil {
			return err
		}
		a.Logger.Debug(ctx, "Pipeline finished",
			"pipeline", result.Pipeline,
			"files", len(result.Files),
			"written", result.Written(),
			"skipped", result.Skipped)
		return nil
	}
}

func (a *App) eachPath(name string, fn func(ctx context.Context, path string) error) Func {
	return func(ctx context.Context, paths ...string) error {
		if len(paths) == 0 {
			return errors.NewConfigError(errors.ErrCodeMissingPaths, name+" needs the changed files as arguments")
		}
		for _, p := range paths {
			if err := fn(ctx, a.path(p)); err != nil {
				return err
			}
		}
		return nil
	}
}

// LessVendor builds the vendor stylesheet pipeline.
func (a *App) LessVendor() (*pipeline.Pipeline, error) {
	return style.Vendor(style.Options{
		Root:        a.Root,
		Sources:     a.Config.Process.LessVendor,
		Dest:        a.path(a.Config.Dist.CSSPath),
		Compiler:    a.Compiler,
		Transformer: a.Transformer,
		Reloader:    a.Reloader,
	})
}

// Less builds the main stylesheet pipeline.
func (a *App) Less() (*pipeline.Pipeline, error) {
	return style.Main(style.Options{
		Root:        a.Root,
		Sources:     a.Config.Process.Less,
		Dest:        a.path(a.Config.DistRoot),
		Compiler:    a.Compiler,
		Transformer: a.Transformer,
		Reloader:    a.Reloader,
	})
}

// Jade builds the template pipeline. Pages are the watched templates.
func (a *App) Jade() (*pipeline.Pipeline, error) {
	return template.Pipeline(template.Options{
		Root:      a.Root,
		Sources:   a.Config.Watch.Jade,
		Partials:  a.Config.Templates.Partials,
		Base:      a.Config.Templates.Base,
		Locals:    a.path(a.Config.Locals),
		Extension: a.Config.Templates.Extension,
		Pretty:    a.Config.Templates.Pretty,
		Dest:      a.path(a.Config.DistRoot),
	})
}

// JS builds the script pipeline.
func (a *App) JS() (*pipeline.Pipeline, error) {
	return script.Pipeline(script.Options{
		Root:    a.Root,
		Sources: a.Config.Process.JS,
		Base:    a.Config.ProcessRoot,
		Dest:    a.path(a.Config.Dist.JSPath),
		Context: a.PreprocessContext(),
	})
}

// Functions builds the function-assembly pipeline.
func (a *App) Functions() (*pipeline.Pipeline, error) {
	globs, err := glob.NewSet(a.Root, a.Config.Process.PHP)
	if err != nil {
		return nil, err
	}
	return pipeline.New(TaskFunctions, pipeline.Source{Globs: globs},
		preprocess.Stage(a.PreprocessContext()),
		pipeline.Dest(a.path(a.Config.DistRoot)),
		pipeline.Notify(a.Reloader),
	), nil
}

// refresh feeds every dist.changed file, plus the files that triggered it,
// to the coalescer.
func (a *App) refresh(ctx context.Context, paths ...string) error {
	globs, err := glob.NewSet(a.Root, a.Config.Dist.Changed...)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeGlobInvalid, err.Error()).WithTask(TaskRefresh, "src")
	}
	files, err := globs.Files()
	if err != nil {
		return errors.NewIOError(errors.ErrCodeGlobInvalid, "resolving dist.changed", err).WithTask(TaskRefresh, "src")
	}

	if a.Coalescer == nil {
		a.Logger.Debug(ctx, "No LiveReload server, nothing to refresh", "files", len(files))
		return nil
	}
	for _, p := range paths {
		files = append(files, a.path(p))
	}
	a.Coalescer.Trigger(files...)
	return nil
}

// Fragment processes a changed function fragment: the PHP tags are
// stripped, .ppp references become .pp, the result is written to
// process.pp_path and the functions file is touched so that the watcher
// reassembles it. The touch is not checked.
func (a *App) Fragment(ctx context.Context, path string) error {
	f, err := pipeline.Load(path, filepath.Dir(path))
	if err != nil {
		return err
	}

	p := pipeline.New(TaskPP, pipeline.Source{},
		pipeline.SetExt(".pp"),
		pipeline.Replace(phpTags, ""),
		pipeline.Replace(pppExtension, ".pp"),
		pipeline.Dest(a.path(a.Config.Process.PPPath)),
		pipeline.Exec(a.Runner, a.Logger, a.Config.Tools.Touch, a.Config.Process.PHP),
	)
	_, err = p.RunFiles(ctx, a.Env, []*pipeline.File{f})
	return err
}

// CopyPHP copies a changed PHP file verbatim to dist_root, keeping its path
// relative to the root.
func (a *App) CopyPHP(ctx context.Context, path string) error {
	f, err := pipeline.Load(path, a.Root)
	if err != nil {
		return err
	}

	p := pipeline.New(TaskAllPHP, pipeline.Source{},
		pipeline.Dest(a.path(a.Config.DistRoot)),
	)
	_, err = p.RunFiles(ctx, a.Env, []*pipeline.File{f})
	return err
}
