package cli

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/roach88/plugtest/internal/harness"
	"github.com/roach88/plugtest/internal/interp"
)

// GenerateResult is the JSON payload of gen-syn.
type GenerateResult struct {
	Files  []string `json:"files"`
	Output string   `json:"output"`
}

// NewGenSynCommand creates the gen-syn command.
func NewGenSynCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen-syn <file>...",
		Short: "Generate syntax files",
		Long: `Run the syntax generator on each file and print the result.

The fragments of all files are printed after a header marking the output
as generated. Nothing is printed unless every file succeeds.

Example:
  plugtest gen-syn ./syntax/gen/keywords.vim > ./syntax/keywords.vim`,
		Args:          usageArgs(cobra.MinimumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenSyn(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runGenSyn(opts *RootOptions, files []string, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	var buf bytes.Buffer
	if opts.Format == "json" {
		out = &buf
	}

	s, err := openSession(opts, cmd, out)
	if err != nil {
		return err
	}
	defer s.close()

	if err := harness.RunGenerate(s.ctx, s.rc, files, interp.Options{Verbose: opts.Verbose}); err != nil {
		return commandError(s.formatter, "generate failed", err)
	}

	if opts.Format == "json" {
		return s.formatter.Success(GenerateResult{Files: files, Output: buf.String()})
	}
	return nil
}
