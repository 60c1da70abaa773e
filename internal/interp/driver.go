// Package interp builds and runs the interpreter process for one artifact.
//
// The interpreter is started with no user configuration, the workspace as
// its home and package path, and the staged package prepended to the
// runtime path. A set of g: variables carries the run parameters, then the
// external driver script is sourced and one of its entry points called.
// The script writes its report to the workspace output file; this package
// never parses it.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/plugtest/internal/stage"
	"github.com/roach88/plugtest/internal/workspace"
)

// ErrRunnerFailure indicates the interpreter exited non-zero. This is a bug
// in the harness or driver script, not a failing assertion.
var ErrRunnerFailure = errors.New("interpreter failed")

// RunnerError carries the artifact and exit code of a runner failure.
type RunnerError struct {
	Artifact string
	Code     int
	Err      error // start or cancellation error, if any
}

func (e *RunnerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrRunnerFailure, e.Artifact, e.Err)
	}
	return fmt.Sprintf("%s: %s: exit code %d", ErrRunnerFailure, e.Artifact, e.Code)
}

func (e *RunnerError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRunnerFailure, e.Err}
	}
	return []error{ErrRunnerFailure}
}

// Wrapper rewrites a command line, e.g. to run it under a coverage tool.
type Wrapper interface {
	Wrap(path string, args []string) (string, []string)
}

// Options are the per-run parameters passed to the driver script.
type Options struct {
	Verbose       bool
	InterpVerbose int    // interpreter -V level; 0 disables
	Run           string // test function filter
	Bench         string // benchmark function filter
	BenchLine     int
	BenchCount    int
}

// Result is the outcome of one interpreter run.
type Result struct {
	ExitCode int
	Output   string // path of the output file the driver script writes
}

// Driver runs the interpreter.
type Driver struct {
	Binary string
	Script string
	Runner Runner

	// Wrapper is applied to every command when set.
	Wrapper Wrapper

	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// BaseFlags start the interpreter silently in Ex mode without vimrc,
// viminfo or swap files.
var BaseFlags = []string{"-u", "NONE", "-i", "NONE", "-N", "-n", "-e", "-s"}

// Layout is the part of a workspace an invocation points the interpreter at.
type Layout interface {
	Dir() string
	PackRoot() string
}

// Invocation builds the interpreter command line for artifact.
func (d *Driver) Invocation(ws Layout, pkg stage.PackageRoot, artifact string, mode Mode, opts Options) *Invocation {
	tmpdir := ws.Dir()
	inv := &Invocation{
		Binary:   d.Binary,
		Flags:    append([]string(nil), BaseFlags...),
		PackPath: []string{ws.PackRoot()},
		Startup:  []string{"filetype plugin indent on", "packloadall!"},
		Script:   d.Script,
		Entry:    mode.Entry(),
		File:     artifact,
	}
	if opts.InterpVerbose > 0 {
		inv.Flags = append(inv.Flags, fmt.Sprintf("-V%d", opts.InterpVerbose))
	}
	if pkg.Staged != "" {
		inv.RuntimePath = []string{pkg.Staged}
	}

	inv.SetVar("test_verbose", opts.Verbose)
	inv.SetVar("test_run", opts.Run)
	inv.SetVar("test_bench", opts.Bench)
	inv.SetVar("test_tmpdir", tmpdir)
	inv.SetVar("test_packdir", pkg.Staged)
	if mode == ModeBench {
		inv.SetVar("test_bench_line", opts.BenchLine)
		inv.SetVar("test_bench_count", opts.BenchCount)
	}
	return inv
}

// Command turns an invocation into a runnable command, applying the wrapper.
func (d *Driver) Command(ws *workspace.Workspace, inv *Invocation) (*Cmd, error) {
	args, err := inv.Args()
	if err != nil {
		return nil, err
	}

	path := inv.Binary
	if d.Wrapper != nil {
		path, args = d.Wrapper.Wrap(path, args)
	}

	return &Cmd{
		Path:   path,
		Args:   args,
		Env:    []string{"HOME=" + ws.Dir(), "MYVIMRC=", "VIMINIT="},
		Stdout: d.Stdout,
		Stderr: d.Stderr,
	}, nil
}

// RunOne runs the interpreter once for artifact. A non-zero exit is
// reported on Stderr together with any partial output and returned as a
// *RunnerError.
func (d *Driver) RunOne(ctx context.Context, ws *workspace.Workspace, pkg stage.PackageRoot, artifact string, mode Mode, opts Options) (Result, error) {
	inv := d.Invocation(ws, pkg, artifact, mode, opts)
	cmd, err := d.Command(ws, inv)
	if err != nil {
		return Result{}, err
	}

	d.logger().Debug("running interpreter", "mode", mode.String(), "artifact", artifact, "cmd", cmd.String())

	code, err := d.Runner.Run(ctx, cmd)
	res := Result{ExitCode: code, Output: ws.OutputFile()}
	if err != nil {
		d.reportFailure(ws, artifact, code)
		return res, &RunnerError{Artifact: artifact, Code: code, Err: err}
	}
	if code != 0 {
		d.reportFailure(ws, artifact, code)
		return res, &RunnerError{Artifact: artifact, Code: code}
	}
	return res, nil
}

func (d *Driver) reportFailure(ws *workspace.Workspace, artifact string, code int) {
	w := d.Stderr
	if w == nil {
		w = os.Stderr
	}

	fmt.Fprintf(w, "%s: %s exited with code %d\n", artifact, d.Binary, code)
	data, err := os.ReadFile(ws.OutputFile())
	if err != nil || len(data) == 0 {
		return
	}
	fmt.Fprintln(w, "Partial output:")
	w.Write(data)
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
