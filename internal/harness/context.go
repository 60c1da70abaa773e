package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/roach88/plugtest/internal/config"
	"github.com/roach88/plugtest/internal/coverage"
	"github.com/roach88/plugtest/internal/interp"
	"github.com/roach88/plugtest/internal/runlog"
	"github.com/roach88/plugtest/internal/workspace"
)

// ErrArtifactFailed indicates the driver script marked an artifact as
// failed in a mode where that fails the whole command.
var ErrArtifactFailed = errors.New("artifact failed")

// IDGenerator produces run IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run IDs.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Settings configure a RunContext. Zero values pick production defaults.
type Settings struct {
	Config *config.Config
	Runner interp.Runner
	IDs    IDGenerator
	Logger *slog.Logger

	// Out receives mode output: test reports, benchmark timings and
	// generated files.
	Out io.Writer

	// Err receives diagnostics and interpreter output.
	Err io.Writer

	// LookPath resolves the coverage tool; defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// RunContext is the state of one run.
type RunContext struct {
	Workspace *workspace.Workspace
	RunID     string
	Config    *config.Config
	Driver    *interp.Driver

	// Coverage is nil unless EnableCoverage succeeded.
	Coverage *coverage.Tool

	Log    *runlog.Store
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer

	// Styles render status marks for Out.
	Styles Styles

	lookPath func(string) (string, error)
	entries  []runlog.Entry
	failed   bool
}

// NewRunContext opens the run log inside ws and wires the driver.
func NewRunContext(ws *workspace.Workspace, s Settings) (*RunContext, error) {
	if s.Config == nil {
		s.Config = config.Default()
	}
	if s.Runner == nil {
		s.Runner = interp.ExecRunner{}
	}
	if s.IDs == nil {
		s.IDs = UUIDv7Generator{}
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.Out == nil {
		s.Out = os.Stdout
	}
	if s.Err == nil {
		s.Err = os.Stderr
	}

	log, err := runlog.Open(ws.LogFile())
	if err != nil {
		return nil, err
	}

	runID := s.IDs.Generate()
	logger := s.Logger.With("run_id", runID)

	return &RunContext{
		Workspace: ws,
		RunID:     runID,
		Config:    s.Config,
		Driver: &interp.Driver{
			Binary: s.Config.Interpreter,
			Script: s.Config.DriverScript,
			Runner: s.Runner,
			Stdout: s.Err,
			Stderr: s.Err,
			Logger: logger,
		},
		Log:      log,
		Logger:   logger,
		Out:      s.Out,
		Err:      s.Err,
		Styles:   NewStyles(s.Out),
		lookPath: s.LookPath,
	}, nil
}

// Close closes the run log. The workspace is owned by the caller.
func (rc *RunContext) Close() error {
	return rc.Log.Close()
}

// EnableCoverage checks that the coverage tool is installed and wraps every
// later interpreter command with it.
func (rc *RunContext) EnableCoverage() error {
	tool := &coverage.Tool{
		Name:     rc.Config.CoverageTool,
		DataFile: rc.Workspace.CoverageData(),
		Dir:      rc.Workspace.Dir(),
		Omit:     rc.Config.Pattern,
		Runner:   rc.Driver.Runner,
		Stderr:   rc.Err,
		LookPath: rc.lookPath,
	}
	if err := tool.Check(); err != nil {
		return err
	}
	rc.Coverage = tool
	rc.Driver.Wrapper = tool
	return nil
}

// Failed reports whether any recorded artifact failed.
func (rc *RunContext) Failed() bool {
	return rc.failed
}

// Entries returns the in-memory run log in recording order.
func (rc *RunContext) Entries() []runlog.Entry {
	return append([]runlog.Entry(nil), rc.entries...)
}

func (rc *RunContext) beginRun(ctx context.Context, mode interp.Mode, target string) error {
	rc.Logger.Debug("run starting", "mode", mode.String(), "target", target, "workspace", rc.Workspace.Dir())
	if err := rc.Log.BeginRun(ctx, runlog.Run{ID: rc.RunID, Mode: mode.String(), Target: target}); err != nil {
		return fmt.Errorf("failed to start run log: %w", err)
	}
	return nil
}
