// Package script builds the script pipeline: sources are minified with
// esbuild in production and then run through the directive preprocessor.
package script

import (
	"context"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/glob"
	"github.com/conneroisu/themesmith/internal/pipeline"
	"github.com/conneroisu/themesmith/internal/preprocess"
)

// Options configures the script pipeline.
type Options struct {
	Root    string
	Sources []string
	// Base is the directory whose relative layout is kept below Dest.
	Base    string
	Dest    string
	Context preprocess.Context
}

// Minify minifies JavaScript in production. Comments carrying directives
// are dropped by the minifier, so only legal comments survive.
func Minify() pipeline.Stage {
	return pipeline.Stage{
		Name: "uglify",
		When: pipeline.Production,
		Apply: func(_ context.Context, f *pipeline.File) error {
			result := api.Transform(string(f.Contents), api.TransformOptions{
				Loader:            api.LoaderJS,
				Sourcefile:        filepath.Base(f.Path),
				MinifyWhitespace:  true,
				MinifyIdentifiers: true,
				MinifySyntax:      true,
				LegalComments:     api.LegalCommentsInline,
				LogLevel:          api.LogLevelSilent,
			})
			if len(result.Errors) > 0 {
				msg := result.Errors[0]
				te := errors.NewCompileError(errors.ErrCodeScriptMinify, msg.Text, nil).
					WithLocation(f.Source, 0, 0)
				if msg.Location != nil {
					te.Line = msg.Location.Line
					te.Column = msg.Location.Column + 1
				}
				return te
			}
			f.Contents = result.Code
			return nil
		},
	}
}

// Pipeline builds the script pipeline.
func Pipeline(opts Options) (*pipeline.Pipeline, error) {
	globs, err := glob.NewSet(opts.Root, opts.Sources...)
	if err != nil {
		return nil, err
	}

	base := opts.Base
	if base != "" && !filepath.IsAbs(base) {
		base = filepath.Join(opts.Root, base)
	}

	return pipeline.New("js", pipeline.Source{Globs: globs, Base: base},
		Minify(),
		preprocess.Stage(opts.Context),
		pipeline.Dest(opts.Dest),
	), nil
}
