// Package style builds the vendor and main stylesheets: LESS sources are
// compiled by an external compiler, then prefixed, optionally minified and
// given source maps with esbuild.
package style

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/themesmith/internal/command"
	"github.com/conneroisu/themesmith/internal/errors"
)

// DefaultCompiler is the LESS compiler used when none is configured.
const DefaultCompiler = "lessc"

// Compiler turns a stylesheet source into CSS and a source map pointing
// back into the source. The map may be nil.
type Compiler interface {
	Compile(ctx context.Context, src []byte, path string) (css, sourceMap []byte, err error)
}

// LessCompiler runs an external LESS compiler with the source on stdin.
// Plain .css sources are returned unchanged.
type LessCompiler struct {
	command string
	runner  command.InputRunner
}

// NewLessCompiler creates a compiler invoking cmd (for example "lessc" or
// "npx lessc") through runner.
func NewLessCompiler(cmd string, runner command.InputRunner) *LessCompiler {
	if strings.TrimSpace(cmd) == "" {
		cmd = DefaultCompiler
	}
	return &LessCompiler{command: cmd, runner: runner}
}

// Compile compiles src. Imports resolve relative to the directory of path.
// The compiler writes its map inline; it is cut from the CSS and returned
// separately.
func (c *LessCompiler) Compile(ctx context.Context, src []byte, path string) ([]byte, []byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".css") {
		return src, nil, nil
	}

	out, err := c.runner.RunWithInput(ctx, bytes.NewReader(src), c.command,
		"--no-color",
		"--include-path="+filepath.Dir(path),
		"--source-map-map-inline",
		"--source-map-include-source",
		"-",
	)
	if err != nil {
		// Output without a diagnostic means the compiler itself failed.
		var te *errors.TaskError
		if stderrors.As(err, &te) && errors.NewErrorParser().First(err.Error()) == nil {
			return nil, nil, te.WithLocation(path, 0, 0)
		}
		return nil, nil, errors.FromCompilerOutput(errors.ErrCodeStyleCompile, path, err.Error(), err)
	}

	css, sourceMap, err := splitInlineMap(out, filepath.Base(path))
	if err != nil {
		return nil, nil, errors.NewCompileError(errors.ErrCodeStyleCompile,
			fmt.Sprintf("reading source map of %s: %v", filepath.Base(path), err), err)
	}
	return css, sourceMap, nil
}

var inlineMapComment = regexp.MustCompile(
	`/\*# sourceMappingURL=data:application/json(?:;charset=[^;,]+)?;base64,([A-Za-z0-9+/=]+) \*/\s*$`)

// stdinNames are the names compilers give a source read from stdin.
var stdinNames = map[string]bool{"": true, "-": true, "input": true, "stdin": true, "<stdin>": true}

// splitInlineMap removes a trailing inline source map from css and returns
// it decoded, with the stdin source renamed to name. CSS without an inline
// map is returned as is with a nil map.
func splitInlineMap(css []byte, name string) ([]byte, []byte, error) {
	loc := inlineMapComment.FindSubmatchIndex(css)
	if loc == nil {
		return css, nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(string(css[loc[2]:loc[3]]))
	if err != nil {
		return nil, nil, err
	}

	var sourceMap map[string]any
	if err := json.Unmarshal(raw, &sourceMap); err != nil {
		return nil, nil, err
	}
	if sources, ok := sourceMap["sources"].([]any); ok {
		for i, s := range sources {
			if str, _ := s.(string); stdinNames[str] {
				sources[i] = name
			}
		}
	}
	if encoded, err := json.Marshal(sourceMap); err == nil {
		raw = encoded
	}

	return bytes.TrimRight(css[:loc[0]], " \t\r\n"), raw, nil
}
