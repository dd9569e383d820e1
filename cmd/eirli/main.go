// Package main provides the CLI entry point for eirli.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/poppingtonic/eirli/cmd/eirli/commands"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "eirli",
	Short: "Eirli - Self-supervised representation learning for decision making",
	Long: `Eirli trains image representation encoders on trajectory datasets with
pluggable self-supervised objectives.

It provides:
  - Algorithm presets (SimCLR, TemporalCPC, MoCo, BYOL, CEB and more)
  - Pluggable pair constructors, augmenters, encoders, decoders and losses
  - Momentum encoders and a negative-sample queue for MoCo-style training
  - Dataset storage backed by SQLite or PostgreSQL
  - JSON checkpoints and scalar metric logs per run`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(commands.TrainCmd)
	rootCmd.AddCommand(commands.DatasetCmd)
	rootCmd.AddCommand(commands.PresetsCmd)
	rootCmd.AddCommand(commands.BenchmarkCmd)
}
