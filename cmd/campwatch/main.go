// Package main is the entry point for the campwatch CLI.
package main

import (
	"os"

	"github.com/jmylchreest/campwatch/cmd/campwatch/commands"
)

func main() {
	os.Exit(commands.ExitCode(commands.Execute()))
}
