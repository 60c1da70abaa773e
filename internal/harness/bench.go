package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/plugtest/internal/discover"
	"github.com/roach88/plugtest/internal/interp"
	"github.com/roach88/plugtest/internal/stage"
)

// ErrInvalidLocator indicates a benchmark locator is not file:line.
var ErrInvalidLocator = errors.New("invalid locator")

// Locator points at one line of a file.
type Locator struct {
	File string
	Line int
}

func (l Locator) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// ParseLocator parses "path:line". The last colon separates the line so
// paths containing colons still work.
func ParseLocator(s string) (Locator, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Locator{}, fmt.Errorf("%w %q: want file:line", ErrInvalidLocator, s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil || line < 1 {
		return Locator{}, fmt.Errorf("%w %q: line must be a positive number", ErrInvalidLocator, s)
	}
	return Locator{File: s[:i], Line: line}, nil
}

// BenchOptions configure a benchmark run.
type BenchOptions struct {
	interp.Options
	Locator Locator

	// Count is how often the line is redrawn; 0 uses the configured default.
	Count int

	// Height truncates the displayed output to this many lines; 0 shows
	// everything.
	Height int
}

// RunBench runs the interpreter's syntax benchmark once for a locator and
// writes the raw timing output to rc.Out. The package is not staged and the
// run log is not used.
func RunBench(ctx context.Context, rc *RunContext, opts BenchOptions) error {
	file := opts.Locator.File
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", discover.ErrNotFound, file)
		}
		return err
	}

	count := opts.Count
	if count <= 0 {
		count = rc.Config.BenchCount
	}
	iopts := opts.Options
	iopts.BenchLine = opts.Locator.Line
	iopts.BenchCount = count

	if err := rc.Begin(file); err != nil {
		return err
	}
	rc.Logger.Debug("benchmark starting", "locator", opts.Locator.String(), "count", count)
	if _, err := rc.Driver.RunOne(ctx, rc.Workspace, stage.PackageRoot{}, file, interp.ModeBench, iopts); err != nil {
		return err
	}

	output, err := rc.readOutput()
	if err != nil {
		return err
	}
	_, err = io.WriteString(rc.Out, Truncate(output, opts.Height))
	return err
}

// Truncate keeps the first height lines of s. A height of 0 or less keeps
// everything.
func Truncate(s string, height int) string {
	if height <= 0 || s == "" {
		return s
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= height {
		return s
	}
	return strings.Join(lines[:height], "")
}
