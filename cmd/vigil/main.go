// Command vigil runs the visibility bridge and its journal tooling.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/vigil/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
