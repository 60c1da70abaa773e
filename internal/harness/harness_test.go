package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plugtest/internal/config"
	"github.com/roach88/plugtest/internal/coverage"
	"github.com/roach88/plugtest/internal/discover"
	"github.com/roach88/plugtest/internal/interp"
	"github.com/roach88/plugtest/internal/runlog"
	"github.com/roach88/plugtest/internal/stage"
	"github.com/roach88/plugtest/internal/testutil"
	"github.com/roach88/plugtest/internal/workspace"
)

type fixture struct {
	rc     *RunContext
	runner *testutil.FakeRunner
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DriverScript = "/opt/plugtest/testing.vim"
	return cfg
}

func newFixture(t *testing.T, handler func(cmd *interp.Cmd) (int, error), lookPath func(string) (string, error)) *fixture {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	f := &fixture{
		runner: &testutil.FakeRunner{Handler: handler},
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	f.rc, err = NewRunContext(ws, Settings{
		Config:   testConfig(),
		Runner:   f.runner,
		IDs:      testutil.NewFixedRunID("run-1"),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:      f.out,
		Err:      f.errOut,
		LookPath: lookPath,
	})
	require.NoError(t, err)
	t.Cleanup(func() { f.rc.Close() })
	return f
}

// makePackage creates base/myplugin with an autoload marker and the given
// files (relative to the package) and returns the package directory.
func makePackage(t *testing.T, files ...string) string {
	t.Helper()
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	pkg := filepath.Join(base, "myplugin")
	require.NoError(t, os.MkdirAll(filepath.Join(pkg, "autoload"), 0755))
	for _, f := range files {
		path := filepath.Join(pkg, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(""), 0644))
	}
	return pkg
}

// passing writes a one-line report naming the artifact.
func passing(cmd *interp.Cmd) (int, error) {
	return 0, testutil.WriteOutput(cmd, "PASS "+filepath.Base(testutil.Target(cmd))+"\n")
}

func TestRunTestsAllPass(t *testing.T) {
	pkg := makePackage(t, "test/a_test.vim", "test/b_test.vim", "test/helper.vim")
	f := newFixture(t, passing, nil)
	report := &bytes.Buffer{}

	result, err := RunTests(context.Background(), f.rc, filepath.Join(pkg, "test"), TestOptions{Report: report})
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, pkg, result.Package)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, f.rc.Failed())

	require.Len(t, result.Entries, 2)
	assert.Equal(t, int64(1), result.Entries[0].Seq)
	assert.Equal(t, filepath.Join(pkg, "test", "a_test.vim"), result.Entries[0].Artifact)
	assert.Equal(t, "PASS a_test.vim\n", result.Entries[0].Output)
	assert.Equal(t, filepath.Join(pkg, "test", "b_test.vim"), result.Entries[1].Artifact)
	assert.Equal(t, result.Entries, f.rc.Entries())

	assert.Contains(t, report.String(), "✓ "+filepath.Join(pkg, "test", "a_test.vim"))
	assert.Contains(t, report.String(), "PASS b_test.vim")

	calls := f.runner.Calls()
	require.Len(t, calls, 2)
	packdir, _ := testutil.Var(calls[0], "test_packdir")
	assert.Equal(t, filepath.Join(f.rc.Workspace.StartDir(), "myplugin"), packdir)
}

func TestRunTestsAssertionFailureIsRecorded(t *testing.T) {
	pkg := makePackage(t, "a_test.vim", "b_test.vim", "c_test.vim")
	f := newFixture(t, func(cmd *interp.Cmd) (int, error) {
		if filepath.Base(testutil.Target(cmd)) == "b_test.vim" {
			require.NoError(t, testutil.MarkFailed(cmd))
			return 0, testutil.WriteOutput(cmd, "FAIL b_test.vim\n")
		}
		return passing(cmd)
	}, nil)
	report := &bytes.Buffer{}

	result, err := RunTests(context.Background(), f.rc, pkg, TestOptions{Report: report})
	require.NoError(t, err)

	require.Len(t, result.Entries, 3)
	assert.Equal(t, runlog.StatusPass, result.Entries[0].Status)
	assert.Equal(t, runlog.StatusFail, result.Entries[1].Status)
	// The marker is cleared before the next artifact.
	assert.Equal(t, runlog.StatusPass, result.Entries[2].Status)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, f.rc.Failed())
	assert.Contains(t, report.String(), "✗ "+filepath.Join(pkg, "b_test.vim"))
}

func TestRunTestsOutputSlotIsClearedBetweenArtifacts(t *testing.T) {
	pkg := makePackage(t, "a_test.vim", "b_test.vim")
	f := newFixture(t, func(cmd *interp.Cmd) (int, error) {
		if filepath.Base(testutil.Target(cmd)) == "a_test.vim" {
			return passing(cmd)
		}
		return 0, nil // b writes nothing
	}, nil)

	result, err := RunTests(context.Background(), f.rc, pkg, TestOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "", result.Entries[1].Output)
}

func TestRunTestsRunnerFailureStopsRun(t *testing.T) {
	pkg := makePackage(t, "a_test.vim", "b_test.vim")
	f := newFixture(t, func(cmd *interp.Cmd) (int, error) { return 1, nil }, nil)

	_, err := RunTests(context.Background(), f.rc, pkg, TestOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, interp.ErrRunnerFailure)

	assert.Len(t, f.runner.Calls(), 1)
	assert.Empty(t, f.rc.Entries())
	assert.Contains(t, f.errOut.String(), "exited with code 1")
}

func TestRunTestsRecursive(t *testing.T) {
	pkg := makePackage(t, "test/a_test.vim", "test/unit/b_test.vim", "test/unit/deep/c_test.vim")
	f := newFixture(t, passing, nil)

	result, err := RunTests(context.Background(), f.rc, filepath.Join(pkg, "test")+"/...", TestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, filepath.Join(pkg, "test", "unit", "deep", "c_test.vim"), result.Entries[2].Artifact)
}

func TestRunTestsNoMatches(t *testing.T) {
	pkg := makePackage(t, "autoload/foo.vim")
	f := newFixture(t, passing, nil)

	_, err := RunTests(context.Background(), f.rc, pkg, TestOptions{})
	assert.ErrorIs(t, err, discover.ErrNoMatches)
	assert.Empty(t, f.runner.Calls())
}

func TestRunTestsNoPackageRoot(t *testing.T) {
	if _, ok := stage.ResolvePackageRoot(os.TempDir()); ok {
		t.Skip("temp dir has a package marker above it")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_test.vim"), nil, 0644))
	f := newFixture(t, passing, nil)

	_, err := RunTests(context.Background(), f.rc, filepath.Join(dir, "a_test.vim"), TestOptions{})
	assert.ErrorIs(t, err, stage.ErrNoPackageRoot)
	assert.Empty(t, f.runner.Calls())
	assert.Empty(t, f.rc.Entries())
}

func TestRunTestsToolMissingBeforeAnything(t *testing.T) {
	f := newFixture(t, passing, func(string) (string, error) { return "", fmt.Errorf("not found") })

	_, err := RunTests(context.Background(), f.rc, "/definitely/missing", TestOptions{Coverage: true})
	assert.ErrorIs(t, err, coverage.ErrToolMissing)
	assert.Empty(t, f.runner.Calls())
}

func TestRunTestsCoverage(t *testing.T) {
	pkg := makePackage(t, "autoload/foo.vim", "test/foo_test.vim")
	profile := filepath.Join(t.TempDir(), "coverage.xml")

	f := newFixture(t, func(cmd *interp.Cmd) (int, error) {
		require.Equal(t, "/usr/bin/covimerage", cmd.Path)
		switch cmd.Args[0] {
		case "run":
			return passing(cmd)
		case "report":
			_, err := fmt.Fprint(cmd.Stdout, "Name  Stmts  Miss  Cover\nautoload/foo.vim  10  2  80%\n")
			return 0, err
		case "xml":
			return 0, os.WriteFile(filepath.Join(cmd.Dir, coverage.ReportName), []byte("<coverage/>"), 0644)
		}
		return 1, nil
	}, func(name string) (string, error) { return "/usr/bin/" + name, nil })

	result, err := RunTests(context.Background(), f.rc, filepath.Join(pkg, "test"), TestOptions{CoverProfile: profile})
	require.NoError(t, err)

	require.Len(t, result.Entries, 1)
	assert.Equal(t, "80%", result.Entries[0].Coverage)
	assert.Equal(t, "PASS foo_test.vim\n  coverage: 80% of statements\n", result.Entries[0].Output)
	assert.FileExists(t, profile)

	var args []string
	for _, c := range f.runner.Calls() {
		args = append(args, c.Args[0])
	}
	assert.Equal(t, []string{"run", "report", "xml"}, args)

	runCmd := f.runner.Calls()[0]
	assert.Equal(t, f.rc.Workspace.CoverageData(), runCmd.Args[2])
	assert.Equal(t, "vim", runCmd.Args[5])
}

func TestRunTestsCoverageWithoutReportRow(t *testing.T) {
	pkg := makePackage(t, "test/foo_test.vim")
	f := newFixture(t, func(cmd *interp.Cmd) (int, error) {
		if cmd.Args[0] == "run" {
			return passing(cmd)
		}
		return 0, nil // empty report
	}, func(name string) (string, error) { return name, nil })

	result, err := RunTests(context.Background(), f.rc, filepath.Join(pkg, "test"), TestOptions{Coverage: true})
	require.NoError(t, err)
	assert.Equal(t, "", result.Entries[0].Coverage)
	assert.NotContains(t, result.Entries[0].Output, "coverage:")
}

func TestRunBench(t *testing.T) {
	pkg := makePackage(t, "syntax/foo.vim")
	file := filepath.Join(pkg, "syntax", "foo.vim")
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	f := newFixture(t, func(cmd *interp.Cmd) (int, error) {
		return 0, testutil.WriteOutput(cmd, strings.Join(lines, "\n")+"\n")
	}, nil)

	err := RunBench(context.Background(), f.rc, BenchOptions{
		Locator: Locator{File: file, Line: 12},
		Height:  3,
	})
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\nline 3\n", f.out.String())

	calls := f.runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Args, "+call BenchSyn()")
	line, _ := testutil.Var(calls[0], "test_bench_line")
	assert.Equal(t, "12", line)
	count, _ := testutil.Var(calls[0], "test_bench_count")
	assert.Equal(t, "100", count)

	// Benchmarks do not stage anything.
	assert.NoDirExists(t, f.rc.Workspace.StartDir())
}

func TestRunBenchCountOverride(t *testing.T) {
	pkg := makePackage(t, "syntax/foo.vim")
	f := newFixture(t, nil, nil)

	err := RunBench(context.Background(), f.rc, BenchOptions{
		Locator: Locator{File: filepath.Join(pkg, "syntax", "foo.vim"), Line: 1},
		Count:   7,
	})
	require.NoError(t, err)
	count, _ := testutil.Var(f.runner.Calls()[0], "test_bench_count")
	assert.Equal(t, "7", count)
}

func TestRunBenchMissingFile(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := RunBench(context.Background(), f.rc, BenchOptions{Locator: Locator{File: "/missing.vim", Line: 1}})
	assert.ErrorIs(t, err, discover.ErrNotFound)
	assert.Empty(t, f.runner.Calls())
}

func TestRunBenchRunnerFailure(t *testing.T) {
	pkg := makePackage(t, "syntax/foo.vim")
	f := newFixture(t, func(*interp.Cmd) (int, error) { return 4, nil }, nil)

	err := RunBench(context.Background(), f.rc, BenchOptions{Locator: Locator{File: filepath.Join(pkg, "syntax", "foo.vim"), Line: 1}})
	assert.ErrorIs(t, err, interp.ErrRunnerFailure)
	assert.Empty(t, f.out.String())
}

func TestParseLocator(t *testing.T) {
	testCases := []struct {
		in      string
		want    Locator
		wantErr bool
	}{
		{in: "syntax/foo.vim:12", want: Locator{File: "syntax/foo.vim", Line: 12}},
		{in: "c:/weird:path.vim:3", want: Locator{File: "c:/weird:path.vim", Line: 3}},
		{in: "foo.vim", wantErr: true},
		{in: "foo.vim:", wantErr: true},
		{in: ":12", wantErr: true},
		{in: "foo.vim:0", wantErr: true},
		{in: "foo.vim:x", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLocator(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLocator)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.in, got.String())
		})
	}
}

func TestTruncate(t *testing.T) {
	testCases := []struct {
		in     string
		height int
		want   string
	}{
		{"a\nb\nc\n", 0, "a\nb\nc\n"},
		{"a\nb\nc\n", 2, "a\nb\n"},
		{"a\nb\nc\n", 3, "a\nb\nc\n"},
		{"a\nb\nc", 2, "a\nb\n"},
		{"a\nb\nc", 5, "a\nb\nc"},
		{"", 2, ""},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, Truncate(tc.in, tc.height), "%q/%d", tc.in, tc.height)
	}
}
