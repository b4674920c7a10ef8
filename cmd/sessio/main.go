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
		Use:   "sessio",
		Short: "Pluggable server-side session store",
		Long: `Sessio is a concurrent session store with swappable backends.

The serve command runs a demo HTTP server with cookie sessions, and
sweep evicts expired sessions from a shared backend. Backends:

  • memory    in-process reference backend
  • redis     shared Redis store (go-redis)
  • postgres  shared SQL store (lib/pq)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		sweepCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sessio %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
