package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/acquire"
	"github.com/1vers1on/uls-ingress/pkg/audit"
	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/loader"
	"github.com/1vers1on/uls-ingress/pkg/metrics"
	"github.com/1vers1on/uls-ingress/pkg/parser"
	"github.com/1vers1on/uls-ingress/pkg/reconcile"
)

// RunLockKey is the lock held for the duration of a run
const RunLockKey = "run"

// ErrRunInProgress is returned when another process holds the run lock
var ErrRunInProgress = errors.New("another ingest run is in progress")

// Store is the destination as seen by a run
type Store interface {
	loader.Store
	Validate(ctx context.Context) error
	Close() error
}

// AcquireFunc fetches and unpacks the archive into a fresh working area for runID
type AcquireFunc func(ctx context.Context, runID string, progress acquire.ProgressFunc) (*acquire.Dataset, error)

// LockFunc takes the run lock and returns its release function
type LockFunc func(ctx context.Context) (release func(context.Context) error, err error)

// Deps are the collaborators of a run. Only Acquire and OpenStore are required.
type Deps struct {
	Acquire   AcquireFunc
	OpenStore func(ctx context.Context) (Store, error)
	Migrate   func(ctx context.Context, store Store) error
	Audit     func(store Store) audit.Sink
	Lock      LockFunc
}

// Pipeline runs acquire, parse, reconcile and load once per Run call.
// It holds no state between runs.
type Pipeline struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger

	progressInterval time.Duration
}

// New creates a Pipeline
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Acquire == nil {
		return nil, errors.New("acquire dependency is required")
	}
	if deps.OpenStore == nil {
		return nil, errors.New("store dependency is required")
	}

	return &Pipeline{
		cfg:              cfg,
		deps:             deps,
		logger:           logger.Named("pipeline"),
		progressInterval: DefaultProgressInterval,
	}, nil
}

// Run performs one complete ingest. Acquisition, store and parse failures are
// fatal; failed batches and audit failures are reported in the summary only.
func (p *Pipeline) Run(ctx context.Context) (summary *RunSummary, err error) {
	runID := uuid.NewString()
	summary = newRunSummary(runID)
	logger := p.logger.With(zap.String("runId", runID))

	defer func() {
		status := StatusSuccess
		switch {
		case errors.Is(err, ErrRunInProgress):
			status = StatusSkipped
		case err != nil:
			status = StatusFailed
		}
		summary.complete(status)

		metrics.RunsTotal.WithLabelValues(status).Inc()
		if status != StatusSkipped {
			metrics.RunDuration.Observe(summary.Duration().Seconds())
		}
		logger.Info("Run finished",
			zap.String("status", status),
			zap.Duration("duration", summary.Duration()),
			zap.Error(err))
	}()

	logger.Info("Starting ingest run",
		zap.String("source", p.cfg.Source.URL),
		zap.String("destination", p.cfg.Destination),
		zap.String("table", p.cfg.Table))

	// Step 1: run lock
	if p.deps.Lock != nil {
		release, err := p.deps.Lock(ctx)
		if err != nil {
			return summary, err
		}
		defer func() {
			// the run context may already be canceled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if rerr := release(releaseCtx); rerr != nil {
				logger.Warn("Failed to release run lock", zap.Error(rerr))
			}
		}()
	}

	// Step 2: destination
	store, err := p.deps.OpenStore(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to open destination: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Failed to close destination", zap.Error(cerr))
		}
	}()

	if p.cfg.AutoMigrate && p.deps.Migrate != nil {
		if err := p.deps.Migrate(ctx, store); err != nil {
			return summary, fmt.Errorf("failed to migrate destination: %w", err)
		}
	}

	if err := store.Validate(ctx); err != nil {
		return summary, fmt.Errorf("destination validation failed: %w", err)
	}

	// Step 3: acquire
	download := NewProgressLogger(logger, "download", "bytes", p.progressInterval)
	ds, err := p.deps.Acquire(ctx, runID, download.Update)
	if err != nil {
		return summary, fmt.Errorf("failed to acquire dataset: %w", err)
	}
	defer func() {
		if cerr := ds.Close(); cerr != nil {
			logger.Warn("Failed to clean up work directory", zap.String("dir", ds.Dir), zap.Error(cerr))
		}
	}()
	summary.ArchiveBytes = ds.Bytes
	metrics.DownloadBytesTotal.Add(float64(ds.Bytes))

	// Step 4: parse
	records := make(map[string][]*parser.Record, len(parser.Schemas))
	for _, schema := range parser.Schemas {
		recs, stats, err := p.parse(ds, schema, logger)
		if err != nil {
			return summary, err
		}
		records[schema.Name] = recs
		summary.Parsed[schema.Name] = stats
		metrics.RecordsParsedTotal.WithLabelValues(schema.Name).Add(float64(stats.Records))
	}

	// Step 5: reconcile
	engine := reconcile.NewEngine(reconcile.StatusIn(p.cfg.IncludeStatuses...), logger)
	result := engine.Reconcile(records[parser.HD.Name], records[parser.EN.Name], records[parser.AM.Name])

	summary.Reconcile = &result.Stats
	summary.AuditFlags = len(result.Flags)
	metrics.LicensesReconciledTotal.WithLabelValues(metrics.OutcomeEmitted).Add(float64(result.Stats.Emitted))
	metrics.LicensesReconciledTotal.WithLabelValues(metrics.OutcomeExcluded).Add(float64(result.Stats.Excluded))
	metrics.LicensesReconciledTotal.WithLabelValues(metrics.OutcomeUnmatched).Add(float64(result.Stats.Unmatched))

	// Step 6: load
	loadProgress := NewProgressLogger(logger, "load", "records", p.progressInterval)
	ld := loader.New(store, loader.Options{
		BatchSize:     p.cfg.BatchSize,
		RetryAttempts: p.cfg.RetryAttempts,
		RetryDelay:    p.cfg.RetryDelay,
		Verify:        p.cfg.VerifyLoad,
		VerifyTimeout: p.cfg.VerifyTimeout,
		Progress:      loadProgress.Update,
	}, logger)

	summary.Load, err = ld.Load(ctx, result.Licenses)
	if err != nil {
		return summary, fmt.Errorf("load interrupted: %w", err)
	}

	// Step 7: audit
	summary.AuditWritten = p.flushAudit(ctx, store, runID, result, logger)

	// Step 8: cleanup, errors only logged
	if cerr := ds.Close(); cerr != nil {
		logger.Warn("Failed to clean up work directory", zap.String("dir", ds.Dir), zap.Error(cerr))
	} else {
		summary.CleanedUp = true
	}

	return summary, nil
}

func (p *Pipeline) parse(ds *acquire.Dataset, schema *parser.Schema, logger *zap.Logger) ([]*parser.Record, parser.ParseStats, error) {
	path, err := ds.Path(schema.FileName())
	if err != nil {
		return nil, parser.ParseStats{}, err
	}

	start := time.Now()
	recs, stats, err := parser.ReadFile(path, schema)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to parse %s: %w", schema.FileName(), err)
	}

	logger.Info("Parsed record file",
		zap.String("file", schema.FileName()),
		zap.Int("lines", stats.Lines),
		zap.Int("records", stats.Records),
		zap.Int("blank", stats.Blank),
		zap.Int("short", stats.Short),
		zap.Int("decoded", stats.Decoded),
		zap.Duration("duration", time.Since(start)))

	return recs, stats, nil
}

func (p *Pipeline) flushAudit(ctx context.Context, store Store, runID string, result *reconcile.Result, logger *zap.Logger) int {
	if len(result.Flags) == 0 {
		return 0
	}

	var sink audit.Sink
	if p.cfg.AuditEnabled && p.deps.Audit != nil {
		sink = p.deps.Audit(store)
	}
	if sink == nil {
		sink = audit.NewLogOnly(logger)
	}

	written, err := sink.Flush(ctx, runID, result.Flags)
	if err != nil {
		logger.Warn("Failed to record audit flags",
			zap.Int("flags", len(result.Flags)),
			zap.Int("written", written),
			zap.Error(err))
	}
	return written
}
