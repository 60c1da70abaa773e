package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/plugtest/internal/runlog"
	"github.com/roach88/plugtest/internal/workspace"
)

// Styles renders status marks. Colors are dropped when the writer is not
// a terminal.
type Styles struct {
	Pass lipgloss.Style
	Fail lipgloss.Style
	Dim  lipgloss.Style
}

// NewStyles returns styles bound to w's color profile.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Pass: r.NewStyle().Foreground(lipgloss.Color("2")),
		Fail: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Dim:  r.NewStyle().Faint(true),
	}
}

// Begin clears the output slot and FAILED marker left by the previous
// artifact.
func (rc *RunContext) Begin(artifact string) error {
	ws := rc.Workspace
	if err := ws.RemoveFile(ws.OutputFile()); err != nil {
		return fmt.Errorf("failed to clear output for %s: %w", artifact, err)
	}
	if err := ws.RemoveFile(ws.FailedMarker()); err != nil {
		return fmt.Errorf("failed to clear marker for %s: %w", artifact, err)
	}
	return nil
}

// readOutput returns the output slot; a missing file is empty output.
func (rc *RunContext) readOutput() (string, error) {
	data, err := os.ReadFile(rc.Workspace.OutputFile())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read output: %w", err)
	}
	return string(data), nil
}

// Record appends the outcome of the artifact that just ran to the run log
// and echoes its report to w using rc.Styles.
func (rc *RunContext) Record(ctx context.Context, artifact string, w io.Writer) (runlog.Entry, error) {
	output, err := rc.readOutput()
	if err != nil {
		return runlog.Entry{}, err
	}

	status := runlog.StatusPass
	if workspace.Exists(rc.Workspace.FailedMarker()) {
		status = runlog.StatusFail
		rc.failed = true
	}

	var pct string
	if rc.Coverage != nil {
		p, ok, err := rc.Coverage.Percent(ctx, artifact)
		switch {
		case err != nil:
			rc.Logger.Warn("coverage report failed", "artifact", artifact, "error", err)
		case !ok:
			rc.Logger.Debug("no coverage row for artifact", "artifact", artifact)
		default:
			pct = p
			if output != "" && !strings.HasSuffix(output, "\n") {
				output += "\n"
			}
			output += fmt.Sprintf("  coverage: %s of statements\n", pct)
		}
	}

	entry, err := rc.Log.Append(ctx, rc.RunID, runlog.Entry{
		Artifact: artifact,
		Status:   status,
		Output:   output,
		Coverage: pct,
	})
	if err != nil {
		return runlog.Entry{}, err
	}
	rc.entries = append(rc.entries, entry)
	rc.Logger.Debug("artifact recorded", "artifact", artifact, "seq", entry.Seq, "status", string(status))

	if w != nil {
		mark := rc.Styles.Pass.Render("✓")
		if status == runlog.StatusFail {
			mark = rc.Styles.Fail.Render("✗")
		}
		fmt.Fprintf(w, "%s %s\n", mark, artifact)
		io.WriteString(w, output)
	}
	return entry, nil
}

// Finish runs the coverage export once for the whole run when a profile
// destination was requested.
func (rc *RunContext) Finish(ctx context.Context, profile string) error {
	if profile == "" || rc.Coverage == nil {
		return nil
	}
	rc.Logger.Debug("exporting coverage", "dest", profile)
	return rc.Coverage.Export(ctx, profile)
}
