package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/momentum/internal/api"
	"github.com/wonny/momentum/internal/api/handlers"
	"github.com/wonny/momentum/internal/ranking"
	"github.com/wonny/momentum/internal/tracker"
	"github.com/wonny/momentum/internal/universe"
)

// apiCmd starts the read-only projection API.
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API over the momentum database.

Endpoints:
  GET /health                         - Health check
  GET /api/top10/{cohort}             - Latest top picks per cohort
  GET /api/positions                  - Trade ledger
  GET /api/positions/{tradeID}        - One position with its option legs
  GET /api/options                    - Option ledger
  GET /api/performance                - Ledger performance vs the benchmark
  GET /api/universe/{cohort}          - Cohort membership
  GET /api/universe/{cohort}/changes  - Membership change log

Example:
  go run ./cmd/momentum api
  go run ./cmd/momentum api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	snapshotRepo := ranking.NewRepository(a.db.Pool)
	positionRepo := tracker.NewPositionRepository(a.db.Pool)
	legRepo := tracker.NewLegRepository(a.db.Pool)
	universeRepo := universe.NewRepository(a.db.Pool)

	rankingHandler := handlers.NewRankingHandler(snapshotRepo, a.log)
	tradesHandler := handlers.NewTradesHandler(positionRepo, legRepo, a.log)
	universeHandler := handlers.NewUniverseHandler(universeRepo, a.log)

	router := api.NewRouter(rankingHandler, tradesHandler, universeHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	go func() {
		if err := server.Start(); err != nil {
			a.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", a.cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
