// Package main is the entry point for the tephra CLI.
package main

import (
	"os"

	"github.com/tephra-labs/tephra/internal/cli"
	"github.com/tephra-labs/tephra/internal/cli/commands"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(commands.ExitCode(err))
	}
}
