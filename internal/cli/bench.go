package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/roach88/plugtest/internal/harness"
	"github.com/roach88/plugtest/internal/interp"
)

// BenchSynOptions holds flags for the bench-syn command.
type BenchSynOptions struct {
	*RootOptions
	InterpVerbose int
}

// BenchResult is the JSON payload of bench-syn.
type BenchResult struct {
	Locator string `json:"locator"`
	Count   int    `json:"count"`
	Output  string `json:"output"`
}

// NewBenchSynCommand creates the bench-syn command.
func NewBenchSynCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BenchSynOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bench-syn <file:line> [count]",
		Short: "Benchmark syntax highlighting of one line",
		Long: `Benchmark the syntax highlighting of a single line.

The file is opened, the cursor put on line and the screen redrawn count
times (100 by default, see bench_count in the config). The timing report
is printed as is, cut to the terminal height when stdout is a terminal.

Examples:
  plugtest bench-syn ./syntax/go.vim:42
  plugtest bench-syn ./syntax/go.vim:42 1000`,
		Args:          usageArgs(cobra.RangeArgs(1, 2)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchSyn(opts, args, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.InterpVerbose, "vim-verbose", "V", 0, "interpreter verbosity level (-V)")

	return cmd
}

func runBenchSyn(opts *BenchSynOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loc, err := harness.ParseLocator(args[0])
	if err != nil {
		return commandError(formatter, "invalid usage", err)
	}
	count := 0
	if len(args) == 2 {
		count, err = strconv.Atoi(args[1])
		if err != nil || count < 1 {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid usage: count must be a positive number, got %q", args[1]))
		}
	}

	out := cmd.OutOrStdout()
	height := 0
	var buf bytes.Buffer
	if opts.Format == "json" {
		out = &buf
	} else {
		height = opts.terminalHeight(out)
	}

	s, err := openSession(opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.close()

	if count == 0 {
		count = s.rc.Config.BenchCount
	}
	err = harness.RunBench(s.ctx, s.rc, harness.BenchOptions{
		Options: interp.Options{
			Verbose:       opts.Verbose,
			InterpVerbose: opts.InterpVerbose,
		},
		Locator: loc,
		Count:   count,
		Height:  height,
	})
	if err != nil {
		return commandError(formatter, "benchmark failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(BenchResult{
			Locator: loc.String(),
			Count:   count,
			Output:  buf.String(),
		})
	}
	return nil
}

// terminalHeight returns the height of the terminal w writes to, or 0 when
// w is not a terminal.
func (o *RootOptions) terminalHeight(w io.Writer) int {
	if o.Height != nil {
		return o.Height()
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return 0
	}
	_, height, err := term.GetSize(f.Fd())
	if err != nil {
		return 0
	}
	return height
}
