// Package main provides the entry point for the rackbrain CLI.
package main

import (
	"context"
	"os"

	"github.com/mrz1836/rackbrain/internal/cli"
)

// Set via ldflags at build time.
//
//nolint:gochecknoglobals // Populated by the linker
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx := context.Background()
	err := cli.Execute(ctx, cli.BuildInfo{Version: version, Commit: commit, Date: date})
	cli.PrintErrorHint(os.Stderr, err)
	cli.CloseLogFile()
	os.Exit(cli.ExitCodeForError(err))
}
