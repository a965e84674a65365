// Command viewflow compiles state declarations, runs scenarios and queries
// the diagnostic event journal.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/viewflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
