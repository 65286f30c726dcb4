package commands

import (
	"fmt"

	"github.com/wonny/momentum/internal/external/polygon"
	"github.com/wonny/momentum/internal/options"
	"github.com/wonny/momentum/internal/pipeline"
	"github.com/wonny/momentum/internal/prices"
	"github.com/wonny/momentum/internal/ranking"
	"github.com/wonny/momentum/internal/tracker"
	"github.com/wonny/momentum/internal/universe"
	"github.com/wonny/momentum/pkg/config"
	"github.com/wonny/momentum/pkg/database"
	"github.com/wonny/momentum/pkg/httputil"
	"github.com/wonny/momentum/pkg/logger"
)

// app bundles the process-wide dependencies every command starts from.
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *database.DB
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database")

	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() {
	a.db.Close()
}

// buildRunner wires the full momentum pipeline.
func (a *app) buildRunner() *pipeline.Runner {
	httpClient := httputil.NewWithTimeout(a.log, a.cfg.Polygon.Timeout)
	market := polygon.NewClient(a.cfg.Polygon, httpClient, a.log)

	barRepo := prices.NewRepository(a.db.Pool)
	universeRepo := universe.NewRepository(a.db.Pool)
	snapshotRepo := ranking.NewRepository(a.db.Pool)
	positionRepo := tracker.NewPositionRepository(a.db.Pool)
	legRepo := tracker.NewLegRepository(a.db.Pool)

	resolver := prices.NewResolver(a.cfg.Resolver, barRepo, universeRepo, market, a.log)
	ranker := ranking.NewRanker(snapshotRepo, a.log)
	selector := options.NewSelector(a.cfg.Selector, market, a.log)
	trk := tracker.NewTracker(positionRepo, legRepo, barRepo, selector, a.log)
	backfiller := tracker.NewBackfiller(positionRepo, legRepo, barRepo, resolver, market, a.cfg.Resolver.Benchmark, a.log)

	return pipeline.NewRunner(resolver, ranker, trk, backfiller, universeRepo, a.log)
}
