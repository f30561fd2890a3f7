package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/metrics"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

	// ErrSchedulerStopped is returned when starting a scheduler that was stopped
	ErrSchedulerStopped = errors.New("scheduler stopped")

	// ErrDuplicateJob is returned when a job name is registered twice
	ErrDuplicateJob = errors.New("job already registered")
)

// Job is one scheduled unit of work. It builds any state it needs per invocation.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on six-field cron specs (seconds first)
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	jobs    map[string]cron.EntryID

	// ctx is handed to every job and canceled when Stop gives up waiting
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Overlapping invocations of the same job are skipped
// and job panics are recovered.
func New(logger *zap.Logger) *Scheduler {
	logger = logger.Named("scheduler")
	cl := cronLogger{logger: logger.Sugar()}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger: logger,
		jobs:   make(map[string]cron.EntryID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under name on spec
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	cl := cronLogger{logger: s.logger.Sugar()}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(func() {
		s.invoke(name, job)
	}))

	id, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.jobs[name] = id

	s.logger.Info("Registered job", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Next returns the next activation time of a job
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	entry := s.cron.Entry(id)
	if entry.Next.IsZero() {
		// not started yet
		return entry.Schedule.Next(time.Now()), true
	}
	return entry.Next, true
}

// Start begins dispatching jobs in the background
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	if s.ctx.Err() != nil {
		return ErrSchedulerStopped
	}
	s.running = true
	s.cron.Start()

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop prevents new invocations and waits for running jobs. If ctx ends
// first, running jobs are canceled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler...")
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		s.cancel()
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("Scheduler shutdown timed out, canceling running jobs")
		return ctx.Err()
	}
}

func (s *Scheduler) invoke(name string, job Job) {
	start := time.Now()
	s.logger.Info("Job started", zap.String("job", name))

	err := job(s.ctx)
	elapsed := time.Since(start)

	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, metrics.StatusFailed).Inc()
		s.logger.Error("Job failed",
			zap.String("job", name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return
	}

	metrics.JobRunsTotal.WithLabelValues(name, metrics.StatusSuccess).Inc()
	s.logger.Info("Job finished",
		zap.String("job", name),
		zap.Duration("duration", elapsed))
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
