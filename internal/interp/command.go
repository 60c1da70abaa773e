package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Cmd describes one child process.
type Cmd struct {
	Path string
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env entries are appended to the host environment, so they override it.
	Env []string

	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for diagnostics.
func (c *Cmd) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Path)
	for _, arg := range c.Args {
		if strings.ContainsAny(arg, " \t'\"|") {
			arg = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// Runner executes commands. It returns the exit code of a process that ran
// to completion; err is reserved for processes that could not be started or
// were cancelled.
type Runner interface {
	Run(ctx context.Context, cmd *Cmd) (int, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run starts the command and blocks until it exits. There is no timeout;
// cancelling ctx kills the process.
func (ExecRunner) Run(ctx context.Context, cmd *Cmd) (int, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr

	err := c.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, fmt.Errorf("execution cancelled: %w", ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to execute %s: %w", cmd.Path, err)
}
