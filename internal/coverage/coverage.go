// Package coverage drives the external coverage tool.
//
// The tool is used three ways: as a wrapper around every interpreter
// command (collecting data into one file for the whole run), as a report
// generator queried once per artifact for a percentage, and as an exporter
// run once at the end of the run.
package coverage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/plugtest/internal/interp"
)

// DefaultTool is the coverage command used when none is configured.
const DefaultTool = "covimerage"

// ReportName is the file the export step writes into the working directory.
const ReportName = "coverage.xml"

// ErrToolMissing indicates coverage was requested but the tool is not on $PATH.
var ErrToolMissing = errors.New("coverage tool not found")

// Tool is a coverage tool bound to one data file.
type Tool struct {
	Name     string
	DataFile string

	// Dir is the working directory for report and export commands.
	Dir string

	// Omit is a glob of files excluded from the exported report.
	Omit string

	Runner interp.Runner
	Stderr io.Writer

	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)

	path string
}

// Check resolves the tool on $PATH.
func (t *Tool) Check() error {
	lookPath := t.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(t.name())
	if err != nil {
		return fmt.Errorf("%w: %s is not in $PATH", ErrToolMissing, t.name())
	}
	t.path = path
	return nil
}

// Wrap implements interp.Wrapper.
func (t *Tool) Wrap(path string, args []string) (string, []string) {
	wrapped := make([]string, 0, len(args)+6)
	wrapped = append(wrapped, "run", "--data-file", t.DataFile, "--append", "--no-report", path)
	wrapped = append(wrapped, args...)
	return t.bin(), wrapped
}

// Percent returns the coverage percentage of the source file an artifact
// tests, e.g. "80%" for foo_test.vim covering foo.vim. ok is false when the
// report has no such file.
func (t *Tool) Percent(ctx context.Context, artifact string) (string, bool, error) {
	out := &bytes.Buffer{}
	code, err := t.Runner.Run(ctx, &interp.Cmd{
		Path:   t.bin(),
		Args:   []string{"report", "--data-file", t.DataFile},
		Dir:    t.Dir,
		Stdout: out,
		Stderr: t.Stderr,
	})
	if err != nil {
		return "", false, fmt.Errorf("coverage report: %w", err)
	}
	if code != 0 {
		return "", false, fmt.Errorf("coverage report: exit code %d", code)
	}

	pct, ok := FindPercent(out.String(), SourceStem(artifact))
	return pct, ok, nil
}

// Export writes the structured report and moves it to dest.
func (t *Tool) Export(ctx context.Context, dest string) error {
	args := []string{"xml", "--data-file", t.DataFile}
	if t.Omit != "" {
		args = append(args, "--omit", t.Omit)
	}
	code, err := t.Runner.Run(ctx, &interp.Cmd{
		Path:   t.bin(),
		Args:   args,
		Dir:    t.Dir,
		Stderr: t.Stderr,
	})
	if err != nil {
		return fmt.Errorf("coverage export: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("coverage export: exit code %d", code)
	}

	if err := moveFile(filepath.Join(t.Dir, ReportName), dest); err != nil {
		return fmt.Errorf("coverage export: %w", err)
	}
	return nil
}

func (t *Tool) name() string {
	if t.Name == "" {
		return DefaultTool
	}
	return t.Name
}

func (t *Tool) bin() string {
	if t.path != "" {
		return t.path
	}
	return t.name()
}

// SourceStem maps an artifact to the stem of the file it tests:
// "test/foo_test.vim" -> "foo".
func SourceStem(artifact string) string {
	base := filepath.Base(artifact)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(stem, "_test")
}

// FindPercent scans a tabular coverage report for the row whose file stem
// equals stem and returns its last column. File names are compared in NFC
// so decomposed names (as written by some filesystems) still match.
func FindPercent(report, stem string) (string, bool) {
	want := norm.NFC.String(stem)

	sc := bufio.NewScanner(strings.NewReader(report))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		last := fields[len(fields)-1]
		if !strings.HasSuffix(last, "%") {
			continue
		}
		base := filepath.Base(fields[0])
		got := norm.NFC.String(strings.TrimSuffix(base, filepath.Ext(base)))
		if got == want {
			return last, true
		}
	}
	return "", false
}

// moveFile renames src to dest, copying when they are on different devices.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}
