package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Synapse - self-hosted AI inference gateway",
	Long: `Synapse is a self-hosted gateway that fronts a fleet of local AI
inference backends behind one stable HTTP surface.

It provides:
  - Resilient routing with retries and per-backend circuit breakers
  - Model lifecycle orchestration (load/unload, profiles, runtime reconfigure)
  - A cloned-voice reference library for speech synthesis
  - A live terminal log feed shared across gateway replicas`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "backends.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
