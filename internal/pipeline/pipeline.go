// Package pipeline runs a fixed sequence of file transform stages over a set
// of source files, ending in a filesystem write.
//
// Every stage carries an enable predicate that is evaluated once per run
// against the build environment, so production-only stages (minify, rename)
// are declared up front instead of being swapped for no-ops inline. Within a
// run each file passes through the enabled stages strictly in declaration
// order. Runs of the same pipeline are independent: overlapping runs are not
// serialised and may interleave their writes.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/themesmith/internal/config"
	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/glob"
)

// File is one source file flowing through a pipeline.
type File struct {
	// Path is the absolute path of the file; renames change it.
	Path string
	// Base is the directory Path is relative to when written.
	Base string
	// Contents holds the current file contents.
	Contents []byte
	// SourceMap holds a source map produced by a transform stage, if any.
	SourceMap []byte
	// Companions are written next to the file by Dest (e.g. source maps).
	Companions []*File
	// Dest is the path the file was written to, set by Dest.
	Dest string
	// Source is the path the file was originally read from.
	Source string
}

// Load reads path into a File rooted at base.
func Load(path, base string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(absPath)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "reading source", err).
			WithLocation(path, 0, 0)
	}

	return &File{
		Path:     absPath,
		Base:     absBase,
		Contents: contents,
		Source:   absPath,
	}, nil
}

// Relative returns the path of the file relative to its base.
func (f *File) Relative() string {
	rel, err := filepath.Rel(f.Base, f.Path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(f.Path)
	}
	return rel
}

// Ext returns the file extension including the dot.
func (f *File) Ext() string {
	return filepath.Ext(f.Path)
}

// SetExt replaces the file extension. ext should include the leading dot.
func (f *File) SetExt(ext string) {
	f.Path = strings.TrimSuffix(f.Path, filepath.Ext(f.Path)) + ext
}

// SetBasename replaces the file name, keeping its directory.
func (f *File) SetBasename(name string) {
	f.Path = filepath.Join(filepath.Dir(f.Path), name)
}

// Predicate decides whether a stage runs for an environment.
type Predicate func(env config.Environment) bool

// Always enables a stage in every environment.
func Always(config.Environment) bool { return true }

// Production enables a stage only for production builds.
func Production(env config.Environment) bool { return env.IsProduction() }

// Transform mutates a file in place.
type Transform func(ctx context.Context, f *File) error

// Stage is one named step of a pipeline.
type Stage struct {
	Name  string
	When  Predicate
	Apply Transform
}

func (s Stage) enabled(env config.Environment) bool {
	if s.When == nil {
		return true
	}
	return s.When(env)
}

// Source selects the files a pipeline reads.
type Source struct {
	Globs *glob.Set
	// Base overrides the glob parent as the base of every file.
	Base string
}

// Pipeline is a named source plus an ordered list of stages.
type Pipeline struct {
	Name   string
	Source Source
	Stages []Stage
}

// Result describes one pipeline run.
type Result struct {
	Pipeline string
	Files    []*File
	Skipped  []string
	Duration time.Duration
}

// Written returns the destination paths of every written file.
func (r *Result) Written() []string {
	var paths []string
	for _, f := range r.Files {
		if f.Dest != "" {
			paths = append(paths, f.Dest)
		}
	}
	return paths
}

// New creates a pipeline.
func New(name string, source Source, stages ...Stage) *Pipeline {
	return &Pipeline{Name: name, Source: source, Stages: stages}
}

// Run resolves the source globs, loads every file and passes it through the
// enabled stages. The first failing stage aborts the run.
func (p *Pipeline) Run(ctx context.Context, env config.Environment) (*Result, error) {
	if p.Source.Globs == nil {
		return nil, errors.NewConfigError(errors.ErrCodeGlobInvalid, "pipeline has no source globs").
			WithTask(p.Name, "src")
	}

	paths, err := p.Source.Globs.Files()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeGlobInvalid, "resolving sources", err).
			WithTask(p.Name, "src")
	}

	files := make([]*File, 0, len(paths))
	for _, path := range paths {
		base := p.Source.Base
		if base == "" {
			base = p.Source.Globs.BaseFor(path)
		}
		f, err := Load(path, base)
		if err != nil {
			return nil, p.wrap(err, "src", path)
		}
		files = append(files, f)
	}

	return p.RunFiles(ctx, env, files)
}

// RunFiles passes already loaded files through the enabled stages.
func (p *Pipeline) RunFiles(ctx context.Context, env config.Environment, files []*File) (*Result, error) {
	start := time.Now()
	result := &Result{Pipeline: p.Name}

	stages := make([]Stage, 0, len(p.Stages))
	for _, s := range p.Stages {
		if s.enabled(env) {
			stages = append(stages, s)
		} else {
			result.Skipped = append(result.Skipped, s.Name)
		}
	}

	for _, f := range files {
		for _, s := range stages {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			if err := s.Apply(ctx, f); err != nil {
				return result, p.wrap(err, s.Name, f.Source)
			}
		}
		result.Files = append(result.Files, f)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (p *Pipeline) wrap(err error, stage, path string) error {
	var te *errors.TaskError
	if stderrors.As(err, &te) {
		if te.Task == "" {
			te.WithTask(p.Name, stage)
		}
		if te.FilePath == "" {
			te.FilePath = path
		}
		return te
	}
	return errors.Wrap(err, errors.ErrorTypeInternal, errors.ErrCodeStageFailed, fmt.Sprintf("stage %s failed", stage)).
		WithTask(p.Name, stage).
		WithLocation(path, 0, 0)
}
