package app

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/acquire"
	"github.com/1vers1on/uls-ingress/pkg/metrics"
	"github.com/1vers1on/uls-ingress/pkg/pipeline"
	"github.com/1vers1on/uls-ingress/pkg/scheduler"
)

const shutdownTimeout = 30 * time.Second

// Scheduled job names
const (
	JobIngest = "ingest"
	JobSweep  = "sweep"
)

// NewScheduleCommand creates the schedule command
func (a *App) NewScheduleCommand() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run ingests on a cron schedule",
		Long: `Schedule runs the ingest on INGEST_SCHEDULE and removes stale work
directories on MAINTENANCE_SCHEDULE until interrupted. Prometheus metrics
are served on METRICS_ADDR.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), runNow)
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "run one ingest before the schedule starts")

	return cmd
}

func (a *App) serve(ctx context.Context, runNow bool) error {
	p, cleanup, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	metricsServer := metrics.NewServer(a.cfg.MetricsAddr, a.logger)
	metricsServer.Start()

	sched := scheduler.New(a.logger)
	if err := sched.Add(JobIngest, a.cfg.IngestSchedule, a.ingestJob(p)); err != nil {
		return err
	}
	if err := sched.Add(JobSweep, a.cfg.MaintenanceSchedule, a.sweepJob()); err != nil {
		return err
	}

	if runNow {
		if err := a.ingestJob(p)(ctx); err != nil {
			a.logger.Error("Initial ingest failed", zap.Error(err))
		}
	}

	if err := sched.Start(); err != nil {
		return err
	}
	if next, ok := sched.Next(JobIngest); ok {
		a.logger.Info("Next ingest scheduled", zap.Time("at", next))
	}

	<-ctx.Done()
	a.logger.Info("Shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopErr := sched.Stop(stopCtx)
	if err := metricsServer.Shutdown(stopCtx); err != nil {
		a.logger.Warn("Failed to stop metrics server", zap.Error(err))
	}
	return stopErr
}

// ingestJob runs the pipeline once. A run skipped for the lock is not an error.
func (a *App) ingestJob(p runner) scheduler.Job {
	return func(ctx context.Context) error {
		summary, err := p.Run(ctx)
		if errors.Is(err, pipeline.ErrRunInProgress) {
			a.logger.Info("Ingest skipped, another run holds the lock")
			return nil
		}
		if summary != nil && summary.Load != nil {
			a.logger.Info("Ingest complete",
				zap.String("runId", summary.RunID),
				zap.Int64("inserted", summary.Load.Inserted),
				zap.Int64("skipped", summary.Load.Skipped),
				zap.Int64("failedRecords", summary.Load.FailedRecords))
		}
		return err
	}
}

func (a *App) sweepJob() scheduler.Job {
	return func(context.Context) error {
		_, err := acquire.SweepStale(a.cfg.Source.WorkDir, a.cfg.Source.StaleWorkDirAge, a.logger)
		return err
	}
}
