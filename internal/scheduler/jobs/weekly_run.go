package jobs

import (
	"context"
	"time"

	"github.com/wonny/momentum/internal/pipeline"
	"github.com/wonny/momentum/pkg/logger"
)

// WeeklyRunJob executes the momentum pipeline every Monday morning, after
// the previous week's final close is available upstream.
type WeeklyRunJob struct {
	runner *pipeline.Runner
	logger *logger.Logger
}

// NewWeeklyRunJob creates the weekly pipeline job.
func NewWeeklyRunJob(runner *pipeline.Runner, log *logger.Logger) *WeeklyRunJob {
	return &WeeklyRunJob{
		runner: runner,
		logger: log,
	}
}

// Name returns the job name.
func (j *WeeklyRunJob) Name() string {
	return "weekly_momentum_run"
}

// Schedule returns the cron schedule: Mondays at 07:00.
func (j *WeeklyRunJob) Schedule() string {
	return "0 0 7 * * 1"
}

// Run executes one momentum run dated today. Reruns of the same date are
// idempotent, so a retry after a partial failure picks up where it left off.
func (j *WeeklyRunJob) Run(ctx context.Context) error {
	return j.runner.Run(ctx, time.Now().UTC())
}
