// Command plugtest runs Vim plugin tests in an isolated workspace.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/plugtest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "plugtest: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
