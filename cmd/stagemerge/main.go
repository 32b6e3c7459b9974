package main

import (
	"os"

	"github.com/stagemerge/stagemerge/cmd/stagemerge/cli"
)

// Set via -ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(cli.Execute(version, commit, date))
}
