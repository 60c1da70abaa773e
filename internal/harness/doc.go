// Package harness drives the interpreter over a set of artifacts and
// aggregates what it reports.
//
// # Run Context
//
// Every operation takes a *RunContext. It owns the workspace handle, the
// run ID, the interpreter driver, the run log and the overall failure flag,
// so no component reaches for global state. The run log is kept both in
// memory (Entries) and in the workspace database (runlog.Store).
//
// # Modes
//
// The harness has three modes, each a function over a RunContext:
//
//   - RunTests: discover artifacts, stage their package, run the driver
//     script's Test entry point once per artifact, record each report.
//   - RunBench: run BenchSyn once for a file:line locator and show the raw
//     timing output, cut to the terminal height.
//   - RunGenerate: stage the package of explicit files, run GenSyn once per
//     file and print the fragments after a generated-file header.
//
// # Failure Signals
//
// A non-zero interpreter exit is a runner failure (interp.ErrRunnerFailure)
// and aborts the run. Failing assertions are not errors: the driver script
// creates the workspace FAILED marker, which Record turns into a "fail"
// entry and sets the run's failure flag.
//
// # Usage
//
//	ws, err := workspace.New("")
//	if err != nil {
//	    return err
//	}
//	defer ws.Close()
//
//	rc, err := harness.NewRunContext(ws, harness.Settings{Config: cfg, Out: os.Stdout})
//	if err != nil {
//	    return err
//	}
//	defer rc.Close()
//
//	result, err := harness.RunTests(ctx, rc, "test/...", harness.TestOptions{})
package harness
