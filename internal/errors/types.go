package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeCompile  ErrorType = "compile"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeCommand  ErrorType = "command"
	ErrorTypeInternal ErrorType = "internal"
)

// TaskError is a structured error raised while running a task.
type TaskError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Task        string
	Stage       string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		task := "task:" + e.Task
		if e.Stage != "" {
			task += "/" + e.Stage
		}
		parts = append(parts, task)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TaskError) Is(target error) bool {
	var t *TaskError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation adds file location information.
func (e *TaskError) WithLocation(filePath string, line, column int) *TaskError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithTask records which task and stage raised the error.
func (e *TaskError) WithTask(task, stage string) *TaskError {
	e.Task = task
	e.Stage = stage

	return e
}

// NewCompileError creates an error for malformed style, template or script source.
func NewCompileError(code, message string, cause error) *TaskError {
	return &TaskError{
		Type:        ErrorTypeCompile,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *TaskError {
	return &TaskError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TaskError {
	return &TaskError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewCommandError creates an error for a failed external command.
func NewCommandError(code, message string, cause error) *TaskError {
	return &TaskError{
		Type:        ErrorTypeCommand,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TaskError {
	return &TaskError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// IsCompileError checks if an error came from a source transform.
func IsCompileError(err error) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Type == ErrorTypeCompile
	}

	return false
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler logs pipeline errors to the console so that a failing run
// never takes down the watch process.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err according to its type. A nil error is ignored.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *TaskError
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch te.Type {
	case ErrorTypeCompile:
		h.logger.Warn(ctx, err, "Compile error",
			"type", te.Type,
			"code", te.Code,
			"task", te.Task,
			"file", te.FilePath,
			"line", te.Line)
	case ErrorTypeCommand:
		h.logger.Warn(ctx, err, "Command failed",
			"type", te.Type,
			"code", te.Code,
			"task", te.Task)
	default:
		if IsRecoverable(err) {
			h.logger.Warn(ctx, err, "Task error",
				"type", te.Type,
				"code", te.Code,
				"task", te.Task,
				"file", te.FilePath)
			return
		}
		h.logger.Error(ctx, err, "Task error",
			"type", te.Type,
			"code", te.Code,
			"task", te.Task,
			"file", te.FilePath)
	}
}

// Common error codes.
const (
	ErrCodeGlobInvalid    = "ERR_GLOB_INVALID"
	ErrCodeReadFailed     = "ERR_READ_FAILED"
	ErrCodeWriteFailed    = "ERR_WRITE_FAILED"
	ErrCodeStyleCompile   = "ERR_STYLE_COMPILE"
	ErrCodeStyleTransform = "ERR_STYLE_TRANSFORM"
	ErrCodeTemplate       = "ERR_TEMPLATE"
	ErrCodeLocals         = "ERR_LOCALS"
	ErrCodeScriptMinify   = "ERR_SCRIPT_MINIFY"
	ErrCodePreprocess     = "ERR_PREPROCESS"
	ErrCodeCommandFailed  = "ERR_COMMAND_FAILED"
	ErrCodeUnknownTask    = "ERR_UNKNOWN_TASK"
	ErrCodeConfigInvalid  = "ERR_CONFIG_INVALID"
	ErrCodeMissingPaths   = "ERR_MISSING_PATHS"
	ErrCodeStageFailed    = "ERR_STAGE_FAILED"
)
