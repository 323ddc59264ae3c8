package preprocess

import (
	"context"
	"errors"

	taskerrors "github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/pipeline"
)

// Stage expands directives in every file against ctx. Directive errors are
// reported at the file and line that contains the directive, which may be an
// included fragment.
func Stage(ctx Context) pipeline.Stage {
	pp := New(ctx)
	return pipeline.Stage{
		Name: "preprocess",
		Apply: func(_ context.Context, f *pipeline.File) error {
			out, err := pp.Process(f.Contents, f.Path)
			if err != nil {
				return stageError(err, f.Source)
			}
			f.Contents = out
			return nil
		},
	}
}

func stageError(err error, source string) *taskerrors.TaskError {
	te := taskerrors.NewCompileError(taskerrors.ErrCodePreprocess, err.Error(), nil).
		WithLocation(source, 0, 0)

	var perr *Error
	if errors.As(err, &perr) {
		te.Message = perr.Message
		if perr.File != "" {
			te.FilePath = perr.File
		}
		te.Line = perr.Line
	}
	return te
}
