package main

import (
	"fmt"
	"os"

	"github.com/ambiyansyah-risyal/antrian"
	"github.com/ambiyansyah-risyal/antrian/cmd/antrian/commands"
)

// Build-time variables injected via ldflags. Empty values keep the
// library defaults.
var (
	version string
	commit  string
	date    string
)

func main() {
	antrian.SetBuildInfo(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
