package harness

import (
	"context"
	"fmt"
	"io"

	"github.com/roach88/plugtest/internal/discover"
	"github.com/roach88/plugtest/internal/interp"
	"github.com/roach88/plugtest/internal/runlog"
	"github.com/roach88/plugtest/internal/stage"
)

// TestOptions configure a test run.
type TestOptions struct {
	interp.Options

	// Coverage wraps the interpreter with the coverage tool.
	Coverage bool

	// CoverProfile is where the exported coverage report is written.
	// Setting it implies Coverage.
	CoverProfile string

	// Report receives per-artifact reports as they are recorded. Nil
	// suppresses them.
	Report io.Writer
}

// TestResult summarizes a test run.
type TestResult struct {
	RunID   string         `json:"run_id"`
	Target  string         `json:"target"`
	Package string         `json:"package"`
	Entries []runlog.Entry `json:"entries"`
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
	Total   int            `json:"total"`
}

// RunTests discovers the artifacts named by target, stages their package
// and runs each one through the interpreter in discovery order.
//
// A runner failure stops the run and is returned as an error. Failing
// assertions are not errors; they show up in TestResult.Failed and in
// rc.Failed.
func RunTests(ctx context.Context, rc *RunContext, target string, opts TestOptions) (*TestResult, error) {
	if opts.Coverage || opts.CoverProfile != "" {
		if err := rc.EnableCoverage(); err != nil {
			return nil, err
		}
	}

	files, err := discover.Discover(target, rc.Config.Pattern)
	if err != nil {
		return nil, err
	}
	rc.Logger.Debug("artifacts discovered", "count", len(files))

	pkg, err := stage.Stage(rc.Workspace, files)
	if err != nil {
		return nil, err
	}
	rc.Logger.Debug("package staged", "source", pkg.Source, "staged", pkg.Staged)

	if err := rc.beginRun(ctx, interp.ModeTest, target); err != nil {
		return nil, err
	}

	for _, file := range files {
		if err := rc.Begin(file); err != nil {
			return nil, err
		}
		if _, err := rc.Driver.RunOne(ctx, rc.Workspace, pkg, file, interp.ModeTest, opts.Options); err != nil {
			return nil, err
		}
		if _, err := rc.Record(ctx, file, opts.Report); err != nil {
			return nil, err
		}
	}

	if err := rc.Finish(ctx, opts.CoverProfile); err != nil {
		return nil, err
	}

	entries := rc.Entries()
	passed, failed, err := rc.Log.Counts(ctx, rc.RunID)
	if err != nil {
		return nil, err
	}
	if passed+failed != len(entries) {
		return nil, fmt.Errorf("run log has %d entries, recorded %d", passed+failed, len(entries))
	}

	return &TestResult{
		RunID:   rc.RunID,
		Target:  target,
		Package: pkg.Source,
		Entries: entries,
		Passed:  passed,
		Failed:  failed,
		Total:   len(entries),
	}, nil
}
