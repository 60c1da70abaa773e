package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/plugtest/internal/harness"
	"github.com/roach88/plugtest/internal/interp"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	InterpVerbose int    // interpreter -V level
	Run           string // test function filter
	Bench         string // benchmark function filter
	Coverage      bool
	CoverProfile  string
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test [flags] <target>",
		Short: "Run plugin test files",
		Long: `Run the test files named by target.

The target is a test file, a directory (searched one level deep) or a
directory followed by /... (searched recursively). Files must match the
configured pattern, *_test.vim by default. All files must belong to the
same plugin: the nearest ancestor directory with an autoload, plugin or
ftplugin subdirectory.

Exit codes:
  0 - All test files passed
  1 - One or more test files failed
  2 - Command error (target not found, nothing matched, bad usage)
  3 - No plugin directory found for the target
  4 - Coverage requested but covimerage is not installed
  5 - The interpreter exited with an error

Examples:
  plugtest test ./test
  plugtest test ./...
  plugtest test --run 'Test_sort' ./test/sort_test.vim
  plugtest test --coverprofile coverage.xml ./test
  plugtest test --format json ./test`,
		Args:          usageArgs(cobra.MinimumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestCommand(opts, args, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.InterpVerbose, "vim-verbose", "V", 0, "interpreter verbosity level (-V)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run only test functions matching this pattern")
	cmd.Flags().StringVar(&opts.Bench, "bench", "", "run benchmark functions matching this pattern")
	cmd.Flags().BoolVar(&opts.Coverage, "coverage", false, "report coverage per test file")
	cmd.Flags().StringVar(&opts.CoverProfile, "coverprofile", "", "write an XML coverage report to this file (implies --coverage)")

	return cmd
}

func runTestCommand(opts *TestOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if len(args) > 1 {
		return commandError(formatter, "invalid usage", fmt.Errorf("%w: got %d targets", ErrMultiTarget, len(args)))
	}
	target := args[0]

	s, err := openSession(opts.RootOptions, cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.close()

	// Per-file reports would corrupt JSON output
	var report io.Writer
	if opts.Format != "json" {
		report = cmd.OutOrStdout()
	}

	result, err := harness.RunTests(s.ctx, s.rc, target, harness.TestOptions{
		Options: interp.Options{
			Verbose:       opts.Verbose,
			InterpVerbose: opts.InterpVerbose,
			Run:           opts.Run,
			Bench:         opts.Bench,
		},
		Coverage:     opts.Coverage,
		CoverProfile: opts.CoverProfile,
		Report:       report,
	})
	if err != nil {
		return commandError(formatter, "test run failed", err)
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result, s.rc.Failed())
	}
	return outputTestText(formatter, s.rc.Styles, result, s.rc.Failed(), opts.CoverProfile)
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result *harness.TestResult, failed bool) error {
	status := "ok"
	if failed {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if failed {
		_, code := classify(ErrTestsFailed)
		response.Error = &CLIError{
			Code:    code,
			Message: fmt.Sprintf("%d test file(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(formatter.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	return testsFailed(result, failed)
}

func outputTestText(formatter *OutputFormatter, st harness.Styles, result *harness.TestResult, failed bool, profile string) error {
	w := formatter.Writer

	fmt.Fprintln(w)
	if failed {
		fmt.Fprintf(w, "%s %d failed, %d passed (%d total)\n",
			st.Fail.Render("✗"), result.Failed, result.Passed, result.Total)
	} else {
		fmt.Fprintf(w, "%s %d passed (%d total)\n", st.Pass.Render("✓"), result.Passed, result.Total)
	}
	if profile != "" {
		fmt.Fprintln(w, st.Dim.Render(fmt.Sprintf("Wrote coverage report to %s", profile)))
	}
	formatter.VerboseLog("Run %s in %s", result.RunID, result.Package)

	return testsFailed(result, failed)
}

// testsFailed returns the exit error for a run with failing test files.
func testsFailed(result *harness.TestResult, failed bool) error {
	if !failed {
		return nil
	}
	// Test failures = exit code 1
	return WrapExitError(ExitFailure, fmt.Sprintf("%d of %d test file(s) failed", result.Failed, result.Total), ErrTestsFailed)
}
