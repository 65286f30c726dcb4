package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/momentum/internal/scheduler"
	"github.com/wonny/momentum/internal/scheduler/jobs"
)

// schedulerCmd runs the weekly pipeline on its cron schedule.
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the weekly momentum schedule",
	Long: `Starts the scheduler and blocks. The pipeline runs every Monday
morning; failed runs are retried with a delay.

Example:
  go run ./cmd/momentum scheduler`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	runner := a.buildRunner()

	sched := scheduler.New(a.log)
	if err := sched.AddJob(jobs.NewWeeklyRunJob(runner, a.log)); err != nil {
		return err
	}

	sched.Start()
	defer sched.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return nil
}
