package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/wonny/momentum/internal/store"
)

// initdbCmd creates the database schema.
var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create the database schema",
	Long: `Creates all tables and indexes. Safe to rerun on an existing
database; every statement is idempotent.

Example:
  go run ./cmd/momentum initdb`,
	RunE: runInitDB,
}

func init() {
	rootCmd.AddCommand(initdbCmd)
}

func runInitDB(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return store.Migrate(context.Background(), a.db.Pool, a.log)
}
