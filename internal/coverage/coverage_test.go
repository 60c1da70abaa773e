package coverage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plugtest/internal/interp"
	"github.com/roach88/plugtest/internal/testutil"
)

const sampleReport = `Name                    Stmts   Miss  Cover
-------------------------------------------
autoload/bar.vim           20     10    50%
autoload/foo.vim           10      2    80%
plugin/foo_test.vim         4      0   100%
-------------------------------------------
TOTAL                      34     12    65%
`

func TestCheckToolMissing(t *testing.T) {
	tool := &Tool{
		Name:     "covimerage",
		LookPath: func(string) (string, error) { return "", errors.New("not found") },
	}

	err := tool.Check()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolMissing)
	assert.Contains(t, err.Error(), "covimerage")
}

func TestCheckResolvesPath(t *testing.T) {
	tool := &Tool{LookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil }}
	require.NoError(t, tool.Check())

	path, args := tool.Wrap("vim", []string{"-e", "a_test.vim"})
	assert.Equal(t, "/usr/bin/covimerage", path)
	assert.Equal(t, []string{"run", "--data-file", "", "--append", "--no-report", "vim", "-e", "a_test.vim"}, args)
}

func TestWrapUsesDataFile(t *testing.T) {
	tool := &Tool{Name: "cov", DataFile: "/ws/coverage.data"}

	path, args := tool.Wrap("vim", nil)
	assert.Equal(t, "cov", path)
	assert.Equal(t, []string{"run", "--data-file", "/ws/coverage.data", "--append", "--no-report", "vim"}, args)
}

func TestSourceStem(t *testing.T) {
	testCases := map[string]string{
		"test/foo_test.vim": "foo",
		"foo_test.vim":      "foo",
		"/a/b/bar.vim":      "bar",
		"noext_test":        "noext",
	}
	for in, want := range testCases {
		assert.Equal(t, want, SourceStem(in), in)
	}
}

func TestFindPercent(t *testing.T) {
	pct, ok := FindPercent(sampleReport, "foo")
	require.True(t, ok)
	assert.Equal(t, "80%", pct)

	pct, ok = FindPercent(sampleReport, "bar")
	require.True(t, ok)
	assert.Equal(t, "50%", pct)

	_, ok = FindPercent(sampleReport, "baz")
	assert.False(t, ok)
}

func TestFindPercentNormalizesNames(t *testing.T) {
	// Decomposed e + combining acute in the report, composed in the artifact.
	report := "autoload/cafe\u0301.vim   4   1   75%\n"

	pct, ok := FindPercent(report, "caf\u00e9")
	require.True(t, ok)
	assert.Equal(t, "75%", pct)
}

func TestPercentRunsReport(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(cmd *interp.Cmd) (int, error) {
		_, err := fmt.Fprint(cmd.Stdout, sampleReport)
		return 0, err
	}}
	tool := &Tool{Name: "covimerage", DataFile: "/ws/coverage.data", Dir: "/ws", Runner: runner}

	pct, ok, err := tool.Percent(context.Background(), "/src/p/test/foo_test.vim")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "80%", pct)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"report", "--data-file", "/ws/coverage.data"}, calls[0].Args)
	assert.Equal(t, "/ws", calls[0].Dir)
}

func TestPercentReportFails(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(*interp.Cmd) (int, error) { return 1, nil }}
	tool := &Tool{Runner: runner}

	_, _, err := tool.Percent(context.Background(), "foo_test.vim")
	assert.Error(t, err)
}

func TestExportMovesReport(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "cov.xml")
	runner := &testutil.FakeRunner{Handler: func(cmd *interp.Cmd) (int, error) {
		return 0, os.WriteFile(filepath.Join(cmd.Dir, ReportName), []byte("<coverage/>"), 0644)
	}}
	tool := &Tool{DataFile: filepath.Join(dir, "coverage.data"), Dir: dir, Omit: "*_test.vim", Runner: runner}

	require.NoError(t, tool.Export(context.Background(), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "<coverage/>", string(data))
	assert.NoFileExists(t, filepath.Join(dir, ReportName))

	assert.Equal(t, []string{"xml", "--data-file", tool.DataFile, "--omit", "*_test.vim"}, runner.Calls()[0].Args)
}

func TestExportFailure(t *testing.T) {
	runner := &testutil.FakeRunner{Handler: func(*interp.Cmd) (int, error) { return 2, nil }}
	tool := &Tool{Dir: t.TempDir(), Runner: runner}

	err := tool.Export(context.Background(), filepath.Join(t.TempDir(), "out.xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 2")
}
