package main

import (
	"os"

	"github.com/vulntor/webscope/cmd/webscope/commands"
)

// main runs the webscope CLI. Exit codes are documented in
// commands.ExitCode.
func main() {
	cmd := commands.NewCommand()

	if err := cmd.Execute(); err != nil {
		if !commands.Reported(err) {
			_ = commands.PrintError(cmd, err)
		}
		os.Exit(commands.ExitCode(err))
	}
}
