package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "daybreak",
	Short: "Daybreak - wake-up challenge lifecycle and penalty settlement engine",
	Long: `Daybreak runs the lifecycle of wake-up challenges: a user commits to
being at a target location by a target time, pre-authorizing a penalty
charged automatically on failure.

The engine judges arrival claims against a geofence, settles penalties
through a payment provider with bounded idempotent retries, and
reconciles expired challenges with periodic sweeps.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Daybreak version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
}
