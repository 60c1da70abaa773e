package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/plugtest/internal/config"
	"github.com/roach88/plugtest/internal/harness"
	"github.com/roach88/plugtest/internal/workspace"
)

// session owns the workspace and run context of one command. close must
// run on every exit path so the workspace never outlives the command.
type session struct {
	rc        *harness.RunContext
	formatter *OutputFormatter
	ctx       context.Context
	stop      context.CancelFunc
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// newLogger configures logging based on the verbose flag.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// openSession loads the configuration, creates the workspace and opens a
// run context in it. Interrupts cancel the returned session's context,
// which kills the interpreter and lets close clean up.
func openSession(opts *RootOptions, cmd *cobra.Command, out io.Writer) (*session, error) {
	formatter := newFormatter(opts, cmd)

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg, err := config.Load(opts.Config, getenv)
	if err != nil {
		// A missing explicit file is a usage error like an invalid one.
		if formatter.Format == "json" {
			_ = formatter.Error("E204", err.Error(), nil)
		}
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	// Take over SIGINT before the workspace exists, so an early interrupt
	// cannot leave it behind.
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	ws, err := workspace.New(opts.TempDir)
	if err != nil {
		stop()
		return nil, commandError(formatter, "failed to create workspace", err)
	}
	logger.Debug("workspace created", "dir", ws.Dir())

	rc, err := harness.NewRunContext(ws, harness.Settings{
		Config:   cfg,
		Runner:   opts.Runner,
		IDs:      opts.IDs,
		Logger:   logger,
		Out:      out,
		Err:      cmd.ErrOrStderr(),
		LookPath: opts.LookPath,
	})
	if err != nil {
		ws.Close()
		stop()
		return nil, commandError(formatter, "failed to open run log", err)
	}

	return &session{rc: rc, formatter: formatter, ctx: ctx, stop: stop}, nil
}

func (s *session) close() {
	s.stop()
	if err := s.rc.Close(); err != nil {
		s.rc.Logger.Warn("failed to close run log", "error", err)
	}
	if err := s.rc.Workspace.Close(); err != nil {
		s.rc.Logger.Warn("failed to remove workspace", "dir", s.rc.Workspace.Dir(), "error", err)
	}
}
