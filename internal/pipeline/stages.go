package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/logging"
)

// Reloader signals connected LiveReload clients that paths changed.
type Reloader interface {
	Reload(ctx context.Context, paths ...string)
}

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Rename gives every file the fixed name.
func Rename(name string) Stage {
	return Stage{
		Name: "rename",
		Apply: func(_ context.Context, f *File) error {
			f.SetBasename(name)
			return nil
		},
	}
}

// SetExt rewrites the extension of every file.
func SetExt(ext string) Stage {
	return Stage{
		Name: "rename",
		Apply: func(_ context.Context, f *File) error {
			f.SetExt(ext)
			return nil
		},
	}
}

// Replace substitutes every match of re in the file contents.
func Replace(re *regexp.Regexp, repl string) Stage {
	return Stage{
		Name: "replace",
		Apply: func(_ context.Context, f *File) error {
			f.Contents = re.ReplaceAll(f.Contents, []byte(repl))
			return nil
		},
	}
}

// SourceMaps moves an attached source map into a companion file under dir
// (relative to the destination of the file) and appends the
// sourceMappingURL comment. Files without a source map pass through.
func SourceMaps(dir string) Stage {
	return Stage{
		Name: "sourcemaps",
		Apply: func(_ context.Context, f *File) error {
			if len(f.SourceMap) == 0 {
				return nil
			}

			mapFile := &File{
				Base:   f.Base,
				Path:   filepath.Join(f.Base, dir, f.Relative()+".map"),
				Source: f.Source,
			}

			contents, err := setMapFile(f.SourceMap, filepath.Base(f.Path))
			if err != nil {
				return errors.NewInternalError("ERR_SOURCEMAP", "rewriting source map", err)
			}
			mapFile.Contents = contents

			url, err := filepath.Rel(filepath.Dir(f.Path), mapFile.Path)
			if err != nil {
				return err
			}
			f.Contents = appendMappingURL(f.Contents, f.Ext(), filepath.ToSlash(url))
			f.SourceMap = nil
			f.Companions = append(f.Companions, mapFile)
			return nil
		},
	}
}

// setMapFile points the "file" field of a source map at the renamed output.
func setMapFile(sourceMap []byte, name string) ([]byte, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(sourceMap, &m); err != nil {
		return nil, err
	}
	m["file"] = name
	return json.Marshal(m)
}

func appendMappingURL(contents []byte, ext, url string) []byte {
	var comment string
	switch ext {
	case ".css":
		comment = fmt.Sprintf("/*# sourceMappingURL=%s */", url)
	default:
		comment = "//# sourceMappingURL=" + url
	}

	out := make([]byte, 0, len(contents)+len(comment)+1)
	out = append(out, contents...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, comment...)
	return append(out, '\n')
}

// Dest writes every file (and its companions) below dir, preserving the
// path relative to the file base.
func Dest(dir string) Stage {
	return Stage{
		Name: "dest",
		Apply: func(_ context.Context, f *File) error {
			target := filepath.Join(dir, f.Relative())
			if err := writeFile(target, f.Contents); err != nil {
				return err
			}
			f.Dest = target

			for _, c := range f.Companions {
				ct := filepath.Join(dir, c.Relative())
				if err := writeFile(ct, c.Contents); err != nil {
					return err
				}
				c.Dest = ct
			}
			return nil
		},
	}
}

func writeFile(path string, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "creating destination directory", err).
			WithLocation(path, 0, 0)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeWriteFailed, "writing destination", err).
			WithLocation(path, 0, 0)
	}
	return nil
}

// Notify signals the reloader with the destination of every written file.
func Notify(r Reloader) Stage {
	return Stage{
		Name: "livereload",
		Apply: func(ctx context.Context, f *File) error {
			if r != nil && f.Dest != "" {
				r.Reload(ctx, f.Dest)
			}
			return nil
		},
	}
}

// Exec runs an external command once per file. A failing command does not
// fail the run; it is only logged at debug level.
func Exec(runner Runner, logger logging.Logger, name string, args ...string) Stage {
	return Stage{
		Name: "run",
		Apply: func(ctx context.Context, f *File) error {
			output, err := runner.Run(ctx, name, args...)
			if err != nil && logger != nil {
				logger.Debug(ctx, "command failed",
					"command", strings.Join(append([]string{name}, args...), " "),
					"error", err.Error(),
					"output", string(output))
			}
			return nil
		},
	}
}
