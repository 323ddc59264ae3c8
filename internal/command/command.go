// Package command runs the external tools the pipelines delegate to, such as
// the LESS compiler and the touch command that re-triggers function
// assembly.
package command

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/conneroisu/themesmith/internal/errors"
	"github.com/conneroisu/themesmith/internal/validation"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// InputRunner executes an external command with data fed to its standard input.
type InputRunner interface {
	RunWithInput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec in an optional working directory.
type ExecRunner struct {
	Dir string
	Env []string
}

// NewExecRunner creates a runner that executes in dir ("" for the process
// working directory).
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir}
}

// Run executes name with args. A command string containing spaces (for
// example "npx lessc") is split into the executable and leading arguments.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.RunWithInput(ctx, nil, name, args...)
}

// RunWithInput executes name with args and stdin attached. A command that
// fails to start or exits non-zero returns a command error carrying its
// output.
func (r *ExecRunner) RunWithInput(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	if err := validation.ValidateCommand(name); err != nil {
		return nil, err
	}
	for _, arg := range args {
		if err := validation.ValidateArgument(arg); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	parts := strings.Fields(name)
	argv := append(parts[1:], args...)

	cmd := exec.CommandContext(ctx, parts[0], argv...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = "failed"
		}
		return stdout.Bytes(), errors.NewCommandError(errors.ErrCodeCommandFailed, parts[0]+": "+msg, err)
	}

	return stdout.Bytes(), nil
}

// Available reports whether the executable of name can be found in PATH.
func Available(name string) bool {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return false
	}
	_, err := exec.LookPath(parts[0])
	return err == nil
}
