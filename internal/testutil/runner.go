// Package testutil provides test doubles for the interpreter boundary.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/plugtest/internal/interp"
)

// FakeRunner records commands instead of running them.
//
// Handler decides the outcome of each call; a nil Handler makes every
// command succeed with exit code 0. Handlers usually stand in for the
// driver script by writing the workspace output file (see WriteOutput).
//
// Thread-safety: all methods are safe for concurrent use.
type FakeRunner struct {
	Handler func(cmd *interp.Cmd) (int, error)

	mu    sync.Mutex
	calls []*interp.Cmd
}

// Run implements interp.Runner.
func (f *FakeRunner) Run(ctx context.Context, cmd *interp.Cmd) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return -1, err
	}
	if f.Handler == nil {
		return 0, nil
	}
	return f.Handler(cmd)
}

// Calls returns the recorded commands in order.
func (f *FakeRunner) Calls() []*interp.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*interp.Cmd(nil), f.calls...)
}

// Var returns the value of g:name as set on the command line. String
// values are unquoted.
func Var(cmd *interp.Cmd, name string) (string, bool) {
	prefix := "let g:" + name + " = "
	for _, arg := range cmd.Args {
		if !strings.HasPrefix(arg, "+let ") {
			continue
		}
		for _, let := range strings.Split(strings.TrimPrefix(arg, "+"), " | ") {
			if !strings.HasPrefix(let, prefix) {
				continue
			}
			v := strings.TrimPrefix(let, prefix)
			if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
				v = strings.ReplaceAll(v[1:len(v)-1], "''", "'")
			}
			return v, true
		}
	}
	return "", false
}

// Target returns the file the command opens, i.e. its last argument.
func Target(cmd *interp.Cmd) string {
	if len(cmd.Args) == 0 {
		return ""
	}
	return cmd.Args[len(cmd.Args)-1]
}

// WriteOutput writes text to the output file of the command's workspace,
// the way the driver script does.
func WriteOutput(cmd *interp.Cmd, text string) error {
	tmpdir, _ := Var(cmd, "test_tmpdir")
	return os.WriteFile(filepath.Join(tmpdir, "test.tmp"), []byte(text), 0644)
}

// MarkFailed creates the FAILED marker in the command's workspace.
func MarkFailed(cmd *interp.Cmd) error {
	tmpdir, _ := Var(cmd, "test_tmpdir")
	return os.WriteFile(filepath.Join(tmpdir, "FAILED"), nil, 0644)
}
