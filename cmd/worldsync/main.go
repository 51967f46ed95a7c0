package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "worldsync",
		Short: "Real-time shared world state server",
		Long: `worldsync serves an authoritative world of entity positions over
WebSocket. Clients join with PLAYER:<id>, move with UPDATE:<x>,<y>, and
every connected client receives a STATE:<json> snapshot after each change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
