// Package main is the entry point for protock, a static protobuf schema
// compatibility checker.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		// cobra already printed the error via its own usage/error output path
		// for flag/arg problems; for everything else we want our own
		// structured line too, since slog is the project's logging voice.
		slog.Error("protock failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func printVersion() {
	fmt.Printf("protock %s (commit: %s, built: %s)\n", version, commit, buildDate)
}
