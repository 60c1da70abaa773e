package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/plugtest/internal/harness"
	"github.com/roach88/plugtest/internal/interp"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // config file; "" reads .plugtest.yaml when present

	// Runner runs interpreter and coverage commands (for testing).
	// If nil, defaults to interp.ExecRunner.
	Runner interp.Runner

	// TempDir is the parent of the run workspace. If empty, $TMPDIR is used.
	TempDir string

	// LookPath, Getenv, IDs and Height override the environment (for
	// testing). Nil values use the real one.
	LookPath func(string) (string, error)
	Getenv   func(string) string
	IDs      harness.IDGenerator
	Height   func() int
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the plugtest CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command around opts so tests
// can inject a runner and a workspace parent.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugtest",
		Short: "plugtest - run Vim plugin tests in isolation",
		Long: `Run Vim plugin tests, syntax benchmarks and syntax generators.

Every run gets a throwaway workspace: the plugin under test is staged as
the only package, the interpreter starts without any user configuration
and a driver script reports results back through the workspace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid usage", err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default .plugtest.yaml)")

	// Add subcommands
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewBenchSynCommand(opts))
	cmd.AddCommand(NewGenSynCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// usageArgs wraps a cobra argument validator so its errors exit with
// ExitCommandError.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid usage", err)
		}
		return nil
	}
}
