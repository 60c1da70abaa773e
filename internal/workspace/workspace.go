// Package workspace owns the per-run temporary directory.
//
// A Workspace holds everything a run writes: the staged package tree, the
// single-slot output file the driver script writes, the FAILED marker, the
// run log database and the optional coverage data file. Close removes all
// of it; callers defer Close immediately after New so every exit path
// cleans up.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Fixed names inside the workspace directory.
const (
	PackName     = "plugtest"
	OutputName   = "test.tmp"
	FailedName   = "FAILED"
	LogName      = "run.db"
	CoverageName = "coverage.data"
)

// ErrClosed is returned when a closed workspace is used.
var ErrClosed = errors.New("workspace is closed")

// Workspace is a directory exclusively owned by one run.
type Workspace struct {
	dir    string
	closed bool
}

// New creates a workspace under parent. An empty parent means os.TempDir,
// which honours $TMPDIR.
func New(parent string) (*Workspace, error) {
	dir, err := os.MkdirTemp(parent, "plugtest-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	// Canonicalize so paths handed to the interpreter compare equal to the
	// ones it reports back (macOS /var -> /private/var).
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// PackRoot is the package-path root handed to the interpreter.
func (w *Workspace) PackRoot() string {
	return w.dir
}

// StartDir is the directory staged packages are linked into.
func (w *Workspace) StartDir() string {
	return filepath.Join(w.dir, "pack", PackName, "start")
}

// OutputFile is the single-slot file the driver script writes per artifact.
func (w *Workspace) OutputFile() string {
	return filepath.Join(w.dir, OutputName)
}

// FailedMarker is created by the driver script when an assertion fails.
func (w *Workspace) FailedMarker() string {
	return filepath.Join(w.dir, FailedName)
}

// LogFile is the run log database.
func (w *Workspace) LogFile() string {
	return filepath.Join(w.dir, LogName)
}

// CoverageData is the data file the coverage wrapper appends to.
func (w *Workspace) CoverageData() string {
	return filepath.Join(w.dir, CoverageName)
}

// Close removes the workspace recursively. Safe to call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.dir, err)
	}
	return nil
}

// RemoveFile deletes a file inside the workspace, ignoring a missing file.
func (w *Workspace) RemoveFile(path string) error {
	if w.closed {
		return ErrClosed
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
