package style

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/themesmith/internal/errors"
)

// DefaultBrowsers are the engine targets used for vendor prefixing when
// none are configured.
var DefaultBrowsers = []string{"chrome58", "firefox57", "safari11", "edge16"}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"deno":    api.EngineDeno,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"hermes":  api.EngineHermes,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"rhino":   api.EngineRhino,
	"safari":  api.EngineSafari,
}

// Engines parses targets such as "chrome58" or "safari11.1" into esbuild
// engines.
func Engines(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, b := range browsers {
		b = strings.ToLower(strings.TrimSpace(b))
		if b == "" {
			continue
		}

		split := strings.IndexFunc(b, unicode.IsDigit)
		if split <= 0 {
			return nil, fmt.Errorf("invalid browser target %q: expected name followed by version", b)
		}

		name, ok := engineNames[b[:split]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", b[:split], b)
		}
		engines = append(engines, api.Engine{Name: name, Version: b[split:]})
	}
	return engines, nil
}

// Transformer post-processes compiled CSS with esbuild.
type Transformer struct {
	engines []api.Engine
}

// NewTransformer creates a transformer prefixing for engines.
func NewTransformer(engines []api.Engine) *Transformer {
	return &Transformer{engines: engines}
}

// Transform lowers and prefixes css for the configured engines and, when
// minify is set, minifies it. inputMap, if present, is chained into the
// returned source map. name is recorded as the source file of the map.
func (t *Transformer) Transform(css, inputMap []byte, name string, minify bool) (code, sourceMap []byte, err error) {
	input := string(css)
	if len(inputMap) > 0 {
		input += "\n/*# sourceMappingURL=data:application/json;base64," +
			base64.StdEncoding.EncodeToString(inputMap) + " */\n"
	}

	result := api.Transform(input, api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       name,
		Sourcemap:        api.SourceMapExternal,
		Engines:          t.engines,
		MinifyWhitespace: minify,
		MinifySyntax:     minify,
		LogLevel:         api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, nil, messageError(errors.ErrCodeStyleTransform, name, result.Errors)
	}

	return result.Code, result.Map, nil
}

// messageError converts the first esbuild message into a located compile
// error; the remaining messages are appended to its text.
func messageError(code, name string, msgs []api.Message) *errors.TaskError {
	first := msgs[0]
	te := errors.NewCompileError(code, first.Text, nil)
	te.FilePath = name

	if loc := first.Location; loc != nil {
		if loc.File != "" && loc.File != "<stdin>" {
			te.FilePath = loc.File
		}
		te.Line = loc.Line
		te.Column = loc.Column + 1
	}

	if len(msgs) > 1 {
		te.Message = fmt.Sprintf("%s (and %d more)", first.Text, len(msgs)-1)
	}

	return te
}
