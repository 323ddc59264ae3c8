package style

import (
	"context"
	"path/filepath"

	"github.com/conneroisu/themesmith/internal/glob"
	"github.com/conneroisu/themesmith/internal/pipeline"
)

const (
	// VendorMinName is the production name of the vendor stylesheet.
	VendorMinName = "vendor.min.css"
	// MainName is the name of the main stylesheet in every environment.
	MainName = "style.css"

	vendorMapDir = "./maps"
	mainMapDir   = "./css/maps"
)

// Options configures a style pipeline.
type Options struct {
	// Root anchors relative source globs.
	Root string
	// Sources are the source globs.
	Sources []string
	// Dest is the destination directory.
	Dest string
	// Compiler compiles the sources into CSS.
	Compiler Compiler
	// Transformer prefixes and minifies the compiled CSS.
	Transformer *Transformer
	// Reloader is signalled with every written file; nil disables it.
	Reloader pipeline.Reloader
}

// Compile is the stage that compiles sources to CSS and renames them to
// .css. The compiler's map becomes the file's source map.
func Compile(compiler Compiler) pipeline.Stage {
	return pipeline.Stage{
		Name: "less",
		Apply: func(ctx context.Context, f *pipeline.File) error {
			out, sourceMap, err := compiler.Compile(ctx, f.Contents, f.Path)
			if err != nil {
				return err
			}
			f.Contents = out
			f.SourceMap = sourceMap
			f.SetExt(".css")
			return nil
		},
	}
}

// Prefix adds the vendor prefixes required by the transformer's engines and
// starts the source map of the file.
func Prefix(t *Transformer) pipeline.Stage {
	return pipeline.Stage{
		Name: "prefix",
		Apply: func(_ context.Context, f *pipeline.File) error {
			return transform(t, f, false)
		},
	}
}

// Minify minifies the CSS in production.
func Minify(t *Transformer) pipeline.Stage {
	return pipeline.Stage{
		Name: "minify",
		When: pipeline.Production,
		Apply: func(_ context.Context, f *pipeline.File) error {
			return transform(t, f, true)
		},
	}
}

func transform(t *Transformer, f *pipeline.File, minify bool) error {
	code, sourceMap, err := t.Transform(f.Contents, f.SourceMap, filepath.Base(f.Source), minify)
	if err != nil {
		return err
	}
	f.Contents = code
	f.SourceMap = sourceMap
	return nil
}

// Vendor builds the vendor stylesheet pipeline. In production the output is
// minified and renamed to vendor.min.css; maps go to ./maps below Dest.
func Vendor(opts Options) (*pipeline.Pipeline, error) {
	source, err := sourceOf(opts)
	if err != nil {
		return nil, err
	}

	rename := pipeline.Rename(VendorMinName)
	rename.When = pipeline.Production

	return pipeline.New("less_vendor", source,
		Compile(opts.Compiler),
		Prefix(opts.Transformer),
		Minify(opts.Transformer),
		rename,
		pipeline.SourceMaps(vendorMapDir),
		pipeline.Dest(opts.Dest),
		pipeline.Notify(opts.Reloader),
	), nil
}

// Main builds the main stylesheet pipeline. The output is always named
// style.css and minified in production; maps go to ./css/maps below Dest.
func Main(opts Options) (*pipeline.Pipeline, error) {
	source, err := sourceOf(opts)
	if err != nil {
		return nil, err
	}

	return pipeline.New("less", source,
		Compile(opts.Compiler),
		Prefix(opts.Transformer),
		Minify(opts.Transformer),
		pipeline.Rename(MainName),
		pipeline.SourceMaps(mainMapDir),
		pipeline.Dest(opts.Dest),
		pipeline.Notify(opts.Reloader),
	), nil
}

func sourceOf(opts Options) (pipeline.Source, error) {
	globs, err := glob.NewSet(opts.Root, opts.Sources...)
	if err != nil {
		return pipeline.Source{}, err
	}
	return pipeline.Source{Globs: globs}, nil
}
