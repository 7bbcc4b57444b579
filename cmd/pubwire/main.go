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
		Use:   "pubwire",
		Short: "Pub/sub relay tooling",
		Long: `Pubwire is client and server tooling for a pub/sub relay service.

It ships:

  • serve   - upstream event handler with a negotiate endpoint
  • invoke  - exercise the invoke flow against a running relay
  • version - build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		invokeCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
