package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/plugtest/internal/discover"
	"github.com/roach88/plugtest/internal/interp"
	"github.com/roach88/plugtest/internal/runlog"
	"github.com/roach88/plugtest/internal/stage"
)

// Header returns the comment block that starts a generated file.
func Header(files []string) string {
	var b strings.Builder
	b.WriteString("\" Code generated by plugtest gen-syn; DO NOT EDIT.\n")
	b.WriteString("\"\n")
	b.WriteString("\" Sources:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "\"   %s\n", f)
	}
	b.WriteString("\n")
	return b.String()
}

// RunGenerate stages the package of files, runs the interpreter's
// generator once per file and writes the header followed by every fragment
// to rc.Out. Nothing is written unless all files succeed: a runner failure
// stops at once, and files the driver script marked as failed are reported
// on rc.Err and returned as ErrArtifactFailed.
func RunGenerate(ctx context.Context, rc *RunContext, files []string, opts interp.Options) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", discover.ErrNotFound, f)
			}
			return err
		}
	}

	pkg, err := stage.Stage(rc.Workspace, files)
	if err != nil {
		return err
	}
	if err := rc.beginRun(ctx, interp.ModeGenerate, strings.Join(files, " ")); err != nil {
		return err
	}

	var out bytes.Buffer
	out.WriteString(Header(files))
	for _, f := range files {
		if err := rc.Begin(f); err != nil {
			return err
		}
		if _, err := rc.Driver.RunOne(ctx, rc.Workspace, pkg, f, interp.ModeGenerate, opts); err != nil {
			return err
		}
		entry, err := rc.Record(ctx, f, nil)
		if err != nil {
			return err
		}
		out.WriteString(entry.Output)
		if entry.Output != "" && !strings.HasSuffix(entry.Output, "\n") {
			out.WriteByte('\n')
		}
	}

	if rc.Failed() {
		var failed []string
		for _, e := range rc.Entries() {
			if e.Status != runlog.StatusFail {
				continue
			}
			failed = append(failed, e.Artifact)
			fmt.Fprintf(rc.Err, "%s %s\n", rc.Styles.Fail.Render("✗"), e.Artifact)
			io.WriteString(rc.Err, e.Output)
		}
		return fmt.Errorf("%w: %s", ErrArtifactFailed, strings.Join(failed, ", "))
	}

	_, err = rc.Out.Write(out.Bytes())
	return err
}
