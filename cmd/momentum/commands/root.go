package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "momentum",
	Short: "Weekly momentum tracking for US equities",
	Long: `Momentum CLI

Ranks cohorts of US equities by 12-month momentum every week, tracks
hypothetical positions for the top picks, and pairs each position with
option contracts.

Usage:
  go run ./cmd/momentum [command]

Examples:
  go run ./cmd/momentum initdb
  go run ./cmd/momentum run
  go run ./cmd/momentum run 2025-06-09
  go run ./cmd/momentum api
  go run ./cmd/momentum scheduler`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
