package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a TaskError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *TaskError {
	if err == nil {
		return nil
	}

	// Keep the location and task of an inner TaskError.
	var te *TaskError
	if errors.As(err, &te) {
		return &TaskError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       te,
			Task:        te.Task,
			Stage:       te.Stage,
			FilePath:    te.FilePath,
			Line:        te.Line,
			Column:      te.Column,
			Recoverable: te.Recoverable,
		}
	}

	return &TaskError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType != ErrorTypeInternal && errType != ErrorTypeConfig,
	}
}

// FromCompilerOutput builds a compile error located at the first diagnostic
// found in output. file is used when the diagnostic names no file.
func FromCompilerOutput(code, file, output string, cause error) *TaskError {
	te := NewCompileError(code, "compilation failed", cause)
	te.FilePath = file

	if parsed := NewErrorParser().First(output); parsed != nil {
		te.Message = parsed.Message
		if parsed.File != "" {
			te.FilePath = parsed.File
		}
		te.Line = parsed.Line
		te.Column = parsed.Column
	}

	return te
}
