// Package main provides the nurturenote command line entry point: the HTTP
// worker plus a few helpers for listing and analysing entries locally.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Console logging until a command installs the full setup.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// RootCmd builds the command tree.
func RootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:          "nurturenote",
		Short:        "AI NurtureNote diary analysis service",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		ServeCmd(&debug),
		ListCmd(&debug),
		AnalyzeCmd(&debug),
		DemoEntryCmd(),
	)

	return root
}
