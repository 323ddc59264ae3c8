// Package preprocess expands build-time directives written inside comments:
//
//	// @include pp/helpers.pp
//	/* @if NODE_ENV == 'production' */ ... /* @endif */
//	<!-- @echo VERSION -->
//	# @ifdef DEBUG
//
// Supported directives are include, if, ifdef, ifndef, else, endif,
// exclude, endexclude and echo. Directives must occupy a whole line, except
// echo which may also appear inline in the /* */ and <!-- --> forms.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxDepth bounds include nesting; deeper chains are treated as cycles.
const DefaultMaxDepth = 16

// Context holds the variables directives can test and echo.
type Context map[string]string

var (
	lineComment  = regexp.MustCompile(`^(\s*)(?://|#)\s*@(\w+)\b[ \t]*(.*?)\s*$`)
	blockComment = regexp.MustCompile(`^(\s*)/\*\s*@(\w+)\b[ \t]*(.*?)\s*\*/\s*$`)
	htmlComment  = regexp.MustCompile(`^(\s*)<!--\s*@(\w+)\b[ \t]*(.*?)\s*-->\s*$`)

	inlineEcho = regexp.MustCompile(`/\*\s*@echo\s+(\w+)\s*\*/|<!--\s*@echo\s+(\w+)\s*-->`)
)

// Preprocessor expands directives against a fixed context.
type Preprocessor struct {
	context  Context
	maxDepth int
	readFile func(string) ([]byte, error)
}

// New creates a preprocessor for ctx.
func New(ctx Context) *Preprocessor {
	if ctx == nil {
		ctx = Context{}
	}
	return &Preprocessor{
		context:  ctx,
		maxDepth: DefaultMaxDepth,
		readFile: os.ReadFile,
	}
}

// Error is a directive error with its location.
type Error struct {
	File    string
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

type directive struct {
	indent string
	name   string
	arg    string
}

func parseDirective(line string) (directive, bool) {
	for _, re := range []*regexp.Regexp{blockComment, htmlComment, lineComment} {
		if m := re.FindStringSubmatch(line); m != nil {
			return directive{indent: m[1], name: m[2], arg: m[3]}, true
		}
	}
	return directive{}, false
}

type frame struct {
	kind         string
	line         int
	parentActive bool
	active       bool
	taken        bool
}

// Process expands the directives in src. path is the file src was read
// from; includes resolve relative to its directory.
func (p *Preprocessor) Process(src []byte, path string) ([]byte, error) {
	return p.process(decode(src), path, 0)
}

func (p *Preprocessor) process(src []byte, path string, depth int) ([]byte, error) {
	if depth > p.maxDepth {
		return nil, &Error{File: path, Message: fmt.Sprintf("include depth exceeds %d (include cycle?)", p.maxDepth)}
	}

	lines := strings.Split(string(src), "\n")
	out := make([]string, 0, len(lines))
	var stack []*frame

	active := func() bool {
		if len(stack) == 0 {
			return true
		}
		return stack[len(stack)-1].active
	}

	for i, line := range lines {
		lineNo := i + 1
		d, ok := parseDirective(line)
		if !ok {
			if active() {
				out = append(out, p.echoInline(line))
			}
			continue
		}

		switch d.name {
		case "if", "ifdef", "ifndef":
			cond, err := p.condition(d.name, d.arg)
			if err != nil {
				return nil, &Error{File: path, Line: lineNo, Message: err.Error()}
			}
			parent := active()
			stack = append(stack, &frame{kind: "if", line: lineNo, parentActive: parent, active: parent && cond, taken: cond})

		case "else":
			if len(stack) == 0 || stack[len(stack)-1].kind != "if" {
				return nil, &Error{File: path, Line: lineNo, Message: "@else without @if"}
			}
			top := stack[len(stack)-1]
			top.active = top.parentActive && !top.taken
			top.taken = true

		case "endif":
			if len(stack) == 0 || stack[len(stack)-1].kind != "if" {
				return nil, &Error{File: path, Line: lineNo, Message: "@endif without @if"}
			}
			stack = stack[:len(stack)-1]

		case "exclude":
			stack = append(stack, &frame{kind: "exclude", line: lineNo, parentActive: active(), active: false})

		case "endexclude":
			if len(stack) == 0 || stack[len(stack)-1].kind != "exclude" {
				return nil, &Error{File: path, Line: lineNo, Message: "@endexclude without @exclude"}
			}
			stack = stack[:len(stack)-1]

		case "include":
			if !active() {
				continue
			}
			included, err := p.include(d.arg, path, depth)
			if err != nil {
				var perr *Error
				if errors.As(err, &perr) {
					return nil, err
				}
				return nil, &Error{File: path, Line: lineNo, Message: err.Error()}
			}
			out = append(out, indent(included, d.indent)...)

		case "echo":
			if active() {
				out = append(out, d.indent+p.context[strings.TrimSpace(d.arg)])
			}

		default:
			// Not a directive we know; keep the comment as written.
			if active() {
				out = append(out, line)
			}
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, &Error{File: path, Line: top.line, Message: fmt.Sprintf("unterminated @%s block", top.kind)}
	}

	return []byte(strings.Join(out, "\n")), nil
}

func (p *Preprocessor) condition(name, arg string) (bool, error) {
	switch name {
	case "ifdef":
		_, ok := p.context[strings.TrimSpace(arg)]
		return ok, nil
	case "ifndef":
		_, ok := p.context[strings.TrimSpace(arg)]
		return !ok, nil
	default:
		return Evaluate(arg, p.context)
	}
}

func (p *Preprocessor) include(arg, from string, depth int) ([]byte, error) {
	target := strings.Trim(strings.TrimSpace(arg), `"'`)
	if target == "" {
		return nil, fmt.Errorf("@include without a path")
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(from), filepath.FromSlash(target))
	}

	data, err := p.readFile(target)
	if err != nil {
		return nil, fmt.Errorf("including %s: %w", target, err)
	}

	expanded, err := p.process(decode(data), target, depth+1)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(expanded, "\r\n"), nil
}

func (p *Preprocessor) echoInline(line string) string {
	if !strings.Contains(line, "@echo") {
		return line
	}
	return inlineEcho.ReplaceAllStringFunc(line, func(match string) string {
		m := inlineEcho.FindStringSubmatch(match)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		return p.context[name]
	})
}

func indent(content []byte, prefix string) []string {
	lines := strings.Split(string(content), "\n")
	if prefix == "" {
		return lines
	}
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return lines
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode drops a UTF-8 byte order mark so included fragments splice cleanly.
// Files without one are returned untouched.
func decode(data []byte) []byte {
	if !bytes.HasPrefix(data, utf8BOM) {
		return data
	}
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return data
	}
	return decoded
}
