package style

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/themesmith/internal/config"
	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/pipeline"
)

// fakeCompiler returns a fixed stylesheet for every source.
type fakeCompiler struct {
	css       string
	sourceMap string
	err       error
	calls     []string
}

func (c *fakeCompiler) Compile(_ context.Context, _ []byte, path string) ([]byte, []byte, error) {
	c.calls = append(c.calls, path)
	if c.err != nil {
		return nil, nil, c.err
	}
	if c.sourceMap == "" {
		return []byte(c.css), nil, nil
	}
	return []byte(c.css), []byte(c.sourceMap), nil
}

type recordingReloader struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingReloader) Reload(_ context.Context, paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, paths...)
}

type fakeInputRunner struct {
	stdin  string
	name   string
	args   []string
	output string
	err    error
}

func (r *fakeInputRunner) RunWithInput(_ context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	data, _ := io.ReadAll(stdin)
	r.stdin = string(data)
	r.name = name
	r.args = args
	return []byte(r.output), r.err
}

func writeSource(t *testing.T, root, rel, contents string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func newTransformer(t *testing.T) *Transformer {
	t.Helper()
	engines, err := Engines(DefaultBrowsers)
	require.NoError(t, err)
	return NewTransformer(engines)
}

func TestEngines(t *testing.T) {
	tests := []struct {
		name     string
		browsers []string
		expected []api.Engine
		wantErr  bool
	}{
		{
			name:     "defaults",
			browsers: DefaultBrowsers,
			expected: []api.Engine{
				{Name: api.EngineChrome, Version: "58"},
				{Name: api.EngineFirefox, Version: "57"},
				{Name: api.EngineSafari, Version: "11"},
				{Name: api.EngineEdge, Version: "16"},
			},
		},
		{
			name:     "dotted version and case",
			browsers: []string{" Safari11.1 ", "", "IOS12"},
			expected: []api.Engine{
				{Name: api.EngineSafari, Version: "11.1"},
				{Name: api.EngineIOS, Version: "12"},
			},
		},
		{name: "missing version", browsers: []string{"chrome"}, wantErr: true},
		{name: "missing name", browsers: []string{"58"}, wantErr: true},
		{name: "unknown engine", browsers: []string{"netscape4"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engines, err := Engines(tt.browsers)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, engines)
		})
	}
}

func TestTransform(t *testing.T) {
	tr := newTransformer(t)
	css := []byte("a {\n  user-select: none;\n}\n\nb {\n  color: red;\n}\n")

	code, sourceMap, err := tr.Transform(css, nil, "vendor.less", false)
	require.NoError(t, err)
	assert.Contains(t, string(code), "-webkit-user-select: none")
	assert.Contains(t, string(sourceMap), `"vendor.less"`)

	minified, _, err := tr.Transform(code, sourceMap, "vendor.less", true)
	require.NoError(t, err)
	assert.Contains(t, string(minified), "b{color:red}")
	assert.Less(t, len(minified), len(code))
}

func TestMessageError(t *testing.T) {
	err := messageError(errors.ErrCodeStyleTransform, "vendor.less", []api.Message{
		{Text: "Expected \"}\"", Location: &api.Location{File: "<stdin>", Line: 3, Column: 4}},
		{Text: "second"},
	})

	assert.True(t, errors.IsCompileError(err))
	assert.Equal(t, "vendor.less", err.FilePath)
	assert.Equal(t, 3, err.Line)
	assert.Equal(t, 5, err.Column)
	assert.Equal(t, "Expected \"}\" (and 1 more)", err.Message)
}

func TestLessCompiler(t *testing.T) {
	runner := &fakeInputRunner{output: "a{color:red}"}
	compiler := NewLessCompiler("", runner)

	out, sourceMap, err := compiler.Compile(context.Background(), []byte("@c: red; a { color: @c }"), "/p/src/less/style.less")
	require.NoError(t, err)
	assert.Equal(t, "a{color:red}", string(out))
	assert.Nil(t, sourceMap)
	assert.Equal(t, DefaultCompiler, runner.name)
	assert.Equal(t, "@c: red; a { color: @c }", runner.stdin)
	assert.Equal(t, []string{
		"--no-color",
		"--include-path=" + filepath.Dir("/p/src/less/style.less"),
		"--source-map-map-inline",
		"--source-map-include-source",
		"-",
	}, runner.args)
}

// lessSource and lessMap describe main.less compiled to lessCSS: the rule
// starts on line 2 of the source and its declaration on line 3.
const (
	lessSource = "@text: #333;\nbody {\n  color: @text;\n}\n"
	lessCSS    = "body {\n  color: #333;\n}\n"
	lessMap    = `{"version":3,"sources":["-"],"names":[],"mappings":"AACA;EACE","sourcesContent":["@text: #333;\nbody {\n  color: @text;\n}\n"]}`
)

type sourceMapJSON struct {
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Mappings       string   `json:"mappings"`
}

func decodeSourceMap(t *testing.T, data []byte) sourceMapJSON {
	t.Helper()
	var m sourceMapJSON
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestLessCompilerInlineMap(t *testing.T) {
	runner := &fakeInputRunner{
		output: lessCSS + "/*# sourceMappingURL=data:application/json;base64," +
			base64.StdEncoding.EncodeToString([]byte(lessMap)) + " */\n",
	}

	css, sourceMap, err := NewLessCompiler("lessc", runner).Compile(context.Background(), []byte(lessSource), "/p/src/less/main.less")
	require.NoError(t, err)

	assert.Equal(t, strings.TrimRight(lessCSS, "\n"), string(css))
	assert.NotContains(t, string(css), "sourceMappingURL")

	m := decodeSourceMap(t, sourceMap)
	assert.Equal(t, []string{"main.less"}, m.Sources)
	assert.Equal(t, "AACA;EACE", m.Mappings)
	require.Len(t, m.SourcesContent, 1)
	assert.Equal(t, lessSource, m.SourcesContent[0])
}

func TestLessCompilerBadInlineMap(t *testing.T) {
	runner := &fakeInputRunner{output: lessCSS + "/*# sourceMappingURL=data:application/json;base64,e30K3 */"}

	_, _, err := NewLessCompiler("lessc", runner).Compile(context.Background(), []byte(lessSource), "/p/main.less")
	require.Error(t, err)
	assert.True(t, errors.IsCompileError(err))
}

func TestSourceMapPointsIntoLess(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "src/less/main.less", lessSource)

	f := &pipeline.File{
		Path:     filepath.Join(root, "src", "less", "main.less"),
		Source:   filepath.Join(root, "src", "less", "main.less"),
		Contents: []byte(lessSource),
	}
	compiler := &fakeCompiler{css: lessCSS, sourceMap: strings.Replace(lessMap, `"-"`, `"main.less"`, 1)}
	tr := newTransformer(t)

	require.NoError(t, Compile(compiler).Apply(context.Background(), f))
	require.NoError(t, Prefix(tr).Apply(context.Background(), f))

	m := decodeSourceMap(t, f.SourceMap)
	assert.Equal(t, []string{"main.less"}, m.Sources)
	require.Len(t, m.SourcesContent, 1)
	assert.Contains(t, m.SourcesContent[0], "color: @text")
	assert.NotEmpty(t, m.Mappings)

	require.NoError(t, Minify(tr).Apply(context.Background(), f))
	m = decodeSourceMap(t, f.SourceMap)
	assert.Equal(t, []string{"main.less"}, m.Sources)
	assert.Contains(t, m.SourcesContent[0], "@text: #333;")
}

func TestLessCompilerPassesCSSThrough(t *testing.T) {
	runner := &fakeInputRunner{}
	out, sourceMap, err := NewLessCompiler("lessc", runner).Compile(context.Background(), []byte("a{}"), "/p/normalize.CSS")
	require.NoError(t, err)
	assert.Equal(t, "a{}", string(out))
	assert.Nil(t, sourceMap)
	assert.Empty(t, runner.name)
}

func TestLessCompilerError(t *testing.T) {
	runner := &fakeInputRunner{
		err: stderrors.New("lessc: exit status 1: ParseError: Unrecognised input in - on line 2, column 3:"),
	}

	_, _, err := NewLessCompiler("lessc", runner).Compile(context.Background(), []byte("a {"), "/p/style.less")
	require.Error(t, err)

	var te *errors.TaskError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.ErrCodeStyleCompile, te.Code)
	assert.Equal(t, "/p/style.less", te.FilePath)
	assert.Equal(t, 2, te.Line)
	assert.Equal(t, 3, te.Column)
}

func TestLessCompilerMissing(t *testing.T) {
	runner := &fakeInputRunner{
		err: errors.NewCommandError(errors.ErrCodeCommandFailed, "lessc: executable file not found in $PATH", nil),
	}

	_, _, err := NewLessCompiler("lessc", runner).Compile(context.Background(), []byte("a {}"), "/p/style.less")
	require.Error(t, err)

	var te *errors.TaskError
	require.True(t, stderrors.As(err, &te))
	assert.Equal(t, errors.ErrorTypeCommand, te.Type)
	assert.Equal(t, "/p/style.less", te.FilePath)
	assert.False(t, errors.IsCompileError(err))
}

func TestVendorPipeline(t *testing.T) {
	tests := []struct {
		name    string
		env     config.Environment
		output  string
		mapFile string
	}{
		{"development", config.EnvDevelopment, "vendor.css", "maps/vendor.css.map"},
		{"production", config.EnvProduction, "vendor.min.css", "maps/vendor.min.css.map"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeSource(t, root, "src/less/vendor/vendor.less", "// vendor")
			dest := filepath.Join(root, "dist", "css")
			reloader := &recordingReloader{}

			p, err := Vendor(Options{
				Root:        root,
				Sources:     []string{"src/less/vendor/*.less"},
				Dest:        dest,
				Compiler:    &fakeCompiler{css: "a {\n  user-select: none;\n}\n"},
				Transformer: newTransformer(t),
				Reloader:    reloader,
			})
			require.NoError(t, err)

			result, err := p.Run(context.Background(), tt.env)
			require.NoError(t, err)
			require.Len(t, result.Files, 1)

			css, err := os.ReadFile(filepath.Join(dest, tt.output))
			require.NoError(t, err)
			assert.Contains(t, string(css), "sourceMappingURL="+tt.mapFile)
			assert.FileExists(t, filepath.Join(dest, filepath.FromSlash(tt.mapFile)))
			assert.Equal(t, []string{filepath.Join(dest, tt.output)}, reloader.paths)

			if tt.env.IsProduction() {
				assert.NotContains(t, string(css), "\n  ")
				assert.NoFileExists(t, filepath.Join(dest, "vendor.css"))
			} else {
				assert.Contains(t, string(css), "\n  ")
			}
		})
	}
}

func TestMainPipeline(t *testing.T) {
	for _, env := range []config.Environment{config.EnvDevelopment, config.EnvProduction} {
		t.Run(env.String(), func(t *testing.T) {
			root := t.TempDir()
			writeSource(t, root, "src/less/main.less", "// main")
			dest := filepath.Join(root, "dist")

			p, err := Main(Options{
				Root:        root,
				Sources:     []string{"src/less/main.less"},
				Dest:        dest,
				Compiler:    &fakeCompiler{css: "body {\n  margin: 0;\n}\n"},
				Transformer: newTransformer(t),
			})
			require.NoError(t, err)

			_, err = p.Run(context.Background(), env)
			require.NoError(t, err)

			css, err := os.ReadFile(filepath.Join(dest, MainName))
			require.NoError(t, err)
			assert.Contains(t, string(css), "sourceMappingURL=css/maps/style.css.map")
			assert.FileExists(t, filepath.Join(dest, "css", "maps", "style.css.map"))
			assert.Equal(t, env.IsProduction(), !strings.Contains(string(css), "\n  "))
		})
	}
}

func TestPipelineCompileFailure(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "src/less/main.less", "a {")
	dest := filepath.Join(root, "dist")
	reloader := &recordingReloader{}

	p, err := Main(Options{
		Root:        root,
		Sources:     []string{"src/less/main.less"},
		Dest:        dest,
		Compiler:    &fakeCompiler{err: errors.NewCompileError(errors.ErrCodeStyleCompile, "Unrecognised input", nil)},
		Transformer: newTransformer(t),
		Reloader:    reloader,
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), config.EnvDevelopment)
	require.Error(t, err)
	assert.True(t, errors.IsCompileError(err))
	assert.NoFileExists(t, filepath.Join(dest, MainName))
	assert.Empty(t, reloader.paths)
}

func TestInvalidGlob(t *testing.T) {
	_, err := Main(Options{Root: t.TempDir(), Sources: []string{"src/[less"}})
	assert.Error(t, err)
}
