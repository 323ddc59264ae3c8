package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level  string
	err    error
	msg    string
	fields []interface{}
}

type recordingLogger struct {
	entries []logEntry
}

func (l *recordingLogger) Error(_ context.Context, err error, msg string, fields ...interface{}) {
	l.entries = append(l.entries, logEntry{level: "error", err: err, msg: msg, fields: fields})
}

func (l *recordingLogger) Warn(_ context.Context, err error, msg string, fields ...interface{}) {
	l.entries = append(l.entries, logEntry{level: "warn", err: err, msg: msg, fields: fields})
}

func TestTaskErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *TaskError
		expected string
	}{
		{
			name:     "message only",
			err:      &TaskError{Message: "boom"},
			expected: "boom",
		},
		{
			name:     "code and task",
			err:      NewCompileError(ErrCodeStyleCompile, "unrecognised input", nil).WithTask("less", "compile"),
			expected: "[ERR_STYLE_COMPILE] task:less/compile unrecognised input",
		},
		{
			name: "location and cause",
			err: NewIOError(ErrCodeReadFailed, "reading source", fs.ErrNotExist).
				WithLocation("src/js/app.js", 3, 7),
			expected: "[ERR_READ_FAILED] src/js/app.js:3:7 reading source: file does not exist",
		},
		{
			name:     "line without column",
			err:      NewCompileError(ErrCodeTemplate, "bad", nil).WithLocation("index.jade", 4, 0),
			expected: "[ERR_TEMPLATE] index.jade:4 bad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTaskErrorIsAndUnwrap(t *testing.T) {
	cause := fs.ErrPermission
	err := NewIOError(ErrCodeWriteFailed, "writing destination", cause)
	wrapped := fmt.Errorf("task less: %w", err)

	assert.True(t, errors.Is(wrapped, fs.ErrPermission))
	assert.True(t, errors.Is(wrapped, &TaskError{Type: ErrorTypeIO, Code: ErrCodeWriteFailed}))
	assert.False(t, errors.Is(wrapped, &TaskError{Type: ErrorTypeIO, Code: ErrCodeReadFailed}))

	var te *TaskError
	require.True(t, errors.As(wrapped, &te))
	assert.Equal(t, ErrCodeWriteFailed, te.Code)
}

func TestClassification(t *testing.T) {
	compile := NewCompileError(ErrCodeScriptMinify, "unexpected token", nil)
	config := NewConfigError("ERR_CONFIG_INVALID", "dist_root is required")
	internal := NewInternalError("ERR_STAGE_FAILED", "stage failed", nil)
	command := NewCommandError(ErrCodeCommandFailed, "lessc exited", nil)

	assert.True(t, IsCompileError(compile))
	assert.False(t, IsCompileError(config))
	assert.False(t, IsCompileError(errors.New("plain")))

	assert.True(t, IsRecoverable(compile))
	assert.True(t, IsRecoverable(command))
	assert.False(t, IsRecoverable(config))
	assert.False(t, IsRecoverable(internal))
	assert.False(t, IsRecoverable(errors.New("plain")))
}

func TestErrorHandlerHandle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		err   error
		level string
		msg   string
	}{
		{"compile", NewCompileError(ErrCodeStyleCompile, "bad", nil), "warn", "Compile error"},
		{"command", NewCommandError(ErrCodeCommandFailed, "exit 1", nil), "warn", "Command failed"},
		{"io", NewIOError(ErrCodeWriteFailed, "disk full", nil), "warn", "Task error"},
		{"internal", NewInternalError(ErrCodeStageFailed, "stage failed", nil), "error", "Task error"},
		{"config", NewConfigError(ErrCodeConfigInvalid, "bad glob"), "error", "Task error"},
		{"plain", errors.New("plain"), "error", "Unhandled error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &recordingLogger{}
			NewErrorHandler(logger).Handle(ctx, tt.err)

			require.Len(t, logger.entries, 1)
			assert.Equal(t, tt.level, logger.entries[0].level)
			assert.Equal(t, tt.msg, logger.entries[0].msg)
			assert.Same(t, tt.err, logger.entries[0].err)
		})
	}
}

func TestErrorHandlerIgnoresNil(t *testing.T) {
	logger := &recordingLogger{}
	NewErrorHandler(logger).Handle(context.Background(), nil)
	assert.Empty(t, logger.entries)

	assert.NotPanics(t, func() {
		NewErrorHandler(nil).Handle(context.Background(), errors.New("x"))
	})
}

func TestErrorCollector(t *testing.T) {
	collector := NewErrorCollector()
	assert.False(t, collector.HasErrors())
	assert.NoError(t, collector.Err())

	lessErr := NewCompileError(ErrCodeStyleCompile, "bad less", nil)
	jadeErr := NewCompileError(ErrCodeTemplate, "bad template", nil)

	collector.Add("less", lessErr)
	collector.Add("js", nil)
	collector.Add("jade", jadeErr)

	require.True(t, collector.HasErrors())
	failures := collector.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "jade", failures[0].Task)
	assert.Equal(t, "less", failures[1].Task)
	assert.Equal(t, "jade, less", collector.Summary())

	err := collector.Err()
	assert.ErrorIs(t, err, lessErr)
	assert.ErrorIs(t, err, jadeErr)
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "X", "y"))

	plain := Wrap(stderrDisk, ErrorTypeIO, ErrCodeWriteFailed, "writing")
	assert.True(t, plain.Recoverable)
	assert.ErrorIs(t, plain, stderrDisk)

	internal := Wrap(stderrDisk, ErrorTypeInternal, ErrCodeStageFailed, "stage failed")
	assert.False(t, internal.Recoverable)

	inner := NewCompileError(ErrCodeStyleCompile, "bad", nil).WithLocation("a.less", 2, 1).WithTask("less", "compile")
	outer := Wrap(inner, ErrorTypeCommand, ErrCodeCommandFailed, "lessc failed")
	assert.Equal(t, "a.less", outer.FilePath)
	assert.Equal(t, 2, outer.Line)
	assert.Equal(t, "less", outer.Task)
	assert.Same(t, inner, outer.Cause)
}

var stderrDisk = errors.New("disk")

func TestErrorParser(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		kind    string
		file    string
		line    int
		column  int
		message string
	}{
		{
			name:    "lessc parse error",
			output:  "ParseError: Unrecognised input in /p/src/less/style.less on line 3, column 5:\n2 a {\n3   color: ;\n",
			kind:    "less",
			file:    "/p/src/less/style.less",
			line:    3,
			column:  5,
			message: "ParseError: Unrecognised input",
		},
		{
			name:    "lessc stdin",
			output:  "NameError: variable @brand is undefined in - on line 1, column 10:",
			kind:    "less",
			line:    1,
			column:  10,
			message: "NameError: variable @brand is undefined",
		},
		{
			name:    "lessc diagnostic followed by exit status",
			output:  "[ERR_COMMAND_FAILED] lessc: ParseError: Unrecognised input in - on line 2, column 3:: exit status 1",
			kind:    "less",
			line:    2,
			column:  3,
			message: "ParseError: Unrecognised input",
		},
		{
			name:    "file line column",
			output:  "<stdin>:4:2: Unexpected end of file",
			kind:    "location",
			file:    "<stdin>",
			line:    4,
			column:  2,
			message: "Unexpected end of file",
		},
	}

	parser := NewErrorParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := parser.First(tt.output)
			require.NotNil(t, parsed)
			assert.Equal(t, tt.kind, parsed.Kind)
			assert.Equal(t, tt.file, parsed.File)
			assert.Equal(t, tt.line, parsed.Line)
			assert.Equal(t, tt.column, parsed.Column)
			assert.Equal(t, tt.message, parsed.Message)
		})
	}

	assert.Nil(t, parser.First("everything fine"))
}

func TestFromCompilerOutput(t *testing.T) {
	err := FromCompilerOutput(ErrCodeStyleCompile, "src/less/style.less",
		"ParseError: Unrecognised input in - on line 7, column 1:", errors.New("exit status 1"))

	assert.True(t, IsCompileError(err))
	assert.Equal(t, "src/less/style.less", err.FilePath)
	assert.Equal(t, 7, err.Line)
	assert.Equal(t, 1, err.Column)
	assert.Equal(t, "ParseError: Unrecognised input", err.Message)

	bare := FromCompilerOutput(ErrCodeStyleCompile, "a.less", "", nil)
	assert.Equal(t, "compilation failed", bare.Message)
	assert.Equal(t, "a.less", bare.FilePath)
}
