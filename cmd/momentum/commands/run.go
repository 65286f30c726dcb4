package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// runCmd executes one momentum run, dated today unless a date is given.
var runCmd = &cobra.Command{
	Use:   "run [date]",
	Short: "Execute one momentum run",
	Long: `Executes one full momentum run: resolves pending fills, resolves the
run's target trading days, ranks every cohort, persists the top picks and
reconciles the trade ledger.

The run is idempotent; rerunning the same date replaces that date's
snapshot and leaves the ledger unchanged.

Example:
  go run ./cmd/momentum run
  go run ./cmd/momentum run 2025-06-09`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	runDate := time.Now().UTC()
	if len(args) == 1 {
		parsed, err := time.Parse("2006-01-02", args[0])
		if err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", args[0], err)
		}
		runDate = parsed
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	runner := a.buildRunner()
	return runner.Run(context.Background(), runDate)
}
