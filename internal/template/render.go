package template

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/glob"
	"github.com/conneroisu/themesmith/internal/pipeline"
)

// DefaultExtension is the server-side extension of rendered pages.
const DefaultExtension = ".php"

// template: index.tmpl:3: function "foo" not defined
// template: index.tmpl:3:14: executing "index.tmpl" at <.x>: ...
var templateErrorRe = regexp.MustCompile(`template: ([^:]+):(\d+)(?::(\d+))?: (.*)`)

// Renderer renders page templates together with a set of partials.
type Renderer struct {
	partials *glob.Set
	funcs    htmltemplate.FuncMap
}

// NewRenderer creates a renderer. Every file matched by partials is parsed
// into each page under its path relative to the partial glob base, with
// forward slashes (for example "header.tmpl" or "nav/main.tmpl").
func NewRenderer(partials *glob.Set) *Renderer {
	return &Renderer{
		partials: partials,
		funcs: htmltemplate.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"join":  strings.Join,
			"default": func(def, v interface{}) interface{} {
				if v == nil || v == "" {
					return def
				}
				return v
			},
		},
	}
}

// Render executes src as the page name with data.
func (r *Renderer) Render(name string, src []byte, data interface{}) ([]byte, error) {
	t := htmltemplate.New(filepath.Base(name)).Funcs(r.funcs)

	if r.partials != nil && len(r.partials.Patterns()) > 0 {
		files, err := r.partials.Files()
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeTemplate, "resolving partials", err)
		}
		for _, path := range files {
			contents, err := os.ReadFile(path)
			if err != nil {
				return nil, errors.NewIOError(errors.ErrCodeReadFailed, "reading partial", err).
					WithLocation(path, 0, 0)
			}
			rel, err := filepath.Rel(r.partials.BaseFor(path), path)
			if err != nil {
				rel = filepath.Base(path)
			}
			if _, err := t.New(filepath.ToSlash(rel)).Parse(string(contents)); err != nil {
				return nil, templateError(err, path)
			}
		}
	}

	if _, err := t.Parse(string(src)); err != nil {
		return nil, templateError(err, name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, templateError(err, name)
	}
	return buf.Bytes(), nil
}

func templateError(err error, path string) *errors.TaskError {
	te := errors.NewCompileError(errors.ErrCodeTemplate, err.Error(), nil).WithLocation(path, 0, 0)
	if m := templateErrorRe.FindStringSubmatch(err.Error()); m != nil {
		te.Line, _ = strconv.Atoi(m[2])
		te.Column, _ = strconv.Atoi(m[3])
		te.Message = m[4]
	}
	return te
}

// Options configures the template pipeline.
type Options struct {
	// Root anchors relative globs and the base directory.
	Root string
	// Sources are the page template globs.
	Sources []string
	// Partials are parsed into every page and never rendered on their own.
	Partials []string
	// Base is the directory whose relative layout is kept below Dest.
	Base string
	// Locals is the data file re-read on every run.
	Locals string
	// Extension replaces the extension of every rendered page.
	Extension string
	// Pretty re-indents the rendered markup.
	Pretty bool
	// Dest is the destination directory.
	Dest string
}

// Render is the stage rendering each file against freshly loaded locals.
func Render(r *Renderer, localsPath string) pipeline.Stage {
	return pipeline.Stage{
		Name: "template",
		Apply: func(_ context.Context, f *pipeline.File) error {
			locals, err := LoadLocals(localsPath)
			if err != nil {
				return err
			}
			out, err := r.Render(f.Path, f.Contents, locals)
			if err != nil {
				return err
			}
			f.Contents = out
			return nil
		},
	}
}

// Pretty is the stage re-indenting rendered markup.
func Pretty() pipeline.Stage {
	return pipeline.Stage{
		Name: "pretty",
		Apply: func(_ context.Context, f *pipeline.File) error {
			f.Contents = Indent(f.Contents)
			return nil
		},
	}
}

// Pipeline builds the template pipeline. It sends no reload signal itself;
// the destination watch triggers the coalesced refresh.
func Pipeline(opts Options) (*pipeline.Pipeline, error) {
	patterns := append([]string{}, opts.Sources...)
	for _, p := range opts.Partials {
		if !strings.HasPrefix(p, "!") {
			patterns = append(patterns, "!"+p)
		}
	}
	sources, err := glob.NewSet(opts.Root, patterns...)
	if err != nil {
		return nil, err
	}

	partials, err := glob.NewSet(opts.Root, opts.Partials...)
	if err != nil {
		return nil, err
	}

	base := opts.Base
	if base == "" {
		base = "."
	}
	if !filepath.IsAbs(base) {
		base = filepath.Join(opts.Root, base)
	}

	ext := opts.Extension
	if ext == "" {
		ext = DefaultExtension
	}

	stages := []pipeline.Stage{Render(NewRenderer(partials), opts.Locals)}
	if opts.Pretty {
		stages = append(stages, Pretty())
	}
	stages = append(stages, pipeline.SetExt(ext), pipeline.Dest(opts.Dest))

	return pipeline.New("jade", pipeline.Source{Globs: sources, Base: base}, stages...), nil
}
