package loader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/metrics"
	"github.com/1vers1on/uls-ingress/pkg/model"
)

// DefaultBatchSize is the number of licenses written per statement
const DefaultBatchSize = 1000

// Store is a destination that inserts licenses and silently skips any whose
// call sign already exists. It returns the number of rows actually inserted.
type Store interface {
	InsertIgnore(ctx context.Context, licenses []model.License) (int64, error)
}

// ProgressFunc receives load progress in records after each batch
type ProgressFunc func(done, total int64)

// Options configures a Loader
type Options struct {
	BatchSize     int
	RetryAttempts int
	RetryDelay    time.Duration
	Verify        bool
	VerifyTimeout time.Duration // 0 keeps the verifier default
	Progress      ProgressFunc
}

// Loader writes licenses to a Store in fixed-size batches. A failed batch is
// logged and counted; it never stops the batches after it.
type Loader struct {
	store        Store
	options      Options
	errorHandler *ErrorHandler
	logger       *zap.Logger
}

// New creates a Loader
func New(store Store, options Options, logger *zap.Logger) *Loader {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBatchSize
	}
	if options.RetryAttempts < 0 {
		options.RetryAttempts = 0
	}

	logger = logger.Named("loader")
	return &Loader{
		store:        store,
		options:      options,
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
	}
}

// Load writes licenses in order. The returned error is non-nil only when ctx
// is done; the summary then covers the batches completed so far.
func (l *Loader) Load(ctx context.Context, licenses []model.License) (*Summary, error) {
	summary := newSummary(len(licenses))

	var verifier *Verifier
	var before int64
	if counter, ok := l.store.(Counter); ok && l.options.Verify {
		verifier = NewVerifier(counter, l.logger)
		if l.options.VerifyTimeout > 0 {
			verifier.WithTimeout(l.options.VerifyTimeout)
		}
		n, err := verifier.Count(ctx)
		if err != nil {
			l.logger.Warn("Skipping verification, could not count rows", zap.Error(err))
			verifier = nil
		}
		before = n
	}

	total := int64(len(licenses))
	l.logger.Info("Starting load",
		zap.Int64("records", total),
		zap.Int("batchSize", l.options.BatchSize))

	for start, index := 0, 0; start < len(licenses); start, index = start+l.options.BatchSize, index+1 {
		if err := ctx.Err(); err != nil {
			summary.Canceled = true
			l.collectErrors(summary)
			summary.complete()
			l.logger.Warn("Load canceled",
				zap.Int("batchesCompleted", summary.Batches),
				zap.Int64("processed", summary.Processed()))
			return summary, err
		}

		end := start + l.options.BatchSize
		if end > len(licenses) {
			end = len(licenses)
		}

		result := l.writeBatch(ctx, index, licenses[start:end])
		l.record(summary, result)

		if l.options.Progress != nil {
			l.options.Progress(summary.Processed(), total)
		}
	}

	l.collectErrors(summary)

	if verifier != nil {
		v, err := verifier.VerifyRowCount(ctx, before, summary.Inserted)
		if err != nil {
			l.logger.Warn("Row count verification failed", zap.Error(err))
		}
		summary.Verification = v
	}

	summary.complete()
	l.logger.Info("Load completed",
		zap.Int64("offered", summary.Offered),
		zap.Int64("rowsInserted", summary.Inserted),
		zap.Int64("rowsSkipped", summary.Skipped),
		zap.Int64("rowsFailed", summary.FailedRecords),
		zap.Int("batches", summary.Batches),
		zap.Int("failedBatches", summary.FailedBatches),
		zap.Duration("duration", summary.Duration),
		zap.Float64("recordsPerSecond", summary.RecordsPerSecond()))

	return summary, nil
}

func (l *Loader) collectErrors(summary *Summary) {
	summary.Errors = l.errorHandler.GetErrorSummary()
	summary.ErrorSamples = l.errorHandler.GetErrorSamples()
}

// writeBatch attempts one batch, retrying transient failures
func (l *Loader) writeBatch(ctx context.Context, index int, batch []model.License) BatchResult {
	result := BatchResult{Index: index, Records: len(batch)}
	startTime := time.Now()

	for attempt := 0; ; attempt++ {
		result.Attempts = attempt + 1

		inserted, err := l.store.InsertIgnore(ctx, batch)
		if err == nil {
			if inserted > int64(len(batch)) {
				l.logger.Warn("Store reported more inserts than offered",
					zap.Int("batch", index),
					zap.Int64("inserted", inserted),
					zap.Int("records", len(batch)))
				inserted = int64(len(batch))
			}
			result.Inserted = inserted
			result.Err = nil
			result.Duration = time.Since(startTime)
			return result
		}

		record := NewErrorRecord(err, l.errorHandler.CategorizeError(err)).
			WithBatch(index, len(batch), batch[0].Callsign).
			WithRetry(attempt)
		l.errorHandler.RecordError(record)
		result.Err = err

		if !l.errorHandler.ShouldRetry(record, l.options.RetryAttempts) {
			result.Duration = time.Since(startTime)
			return result
		}

		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			return result
		case <-time.After(l.options.RetryDelay):
		}
	}
}

func (l *Loader) record(summary *Summary, result BatchResult) {
	summary.Batches++
	summary.Retries += result.Attempts - 1
	metrics.LoadBatchDuration.Observe(result.Duration.Seconds())

	if result.Err != nil {
		summary.FailedBatches++
		summary.FailedRecords += int64(result.Records)
		metrics.LoadBatchesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		metrics.LoadRecordsTotal.WithLabelValues(metrics.ResultFailed).Add(float64(result.Records))
		return
	}

	summary.Inserted += result.Inserted
	summary.Skipped += result.Skipped()
	metrics.LoadBatchesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.LoadRecordsTotal.WithLabelValues(metrics.ResultInserted).Add(float64(result.Inserted))
	metrics.LoadRecordsTotal.WithLabelValues(metrics.ResultSkipped).Add(float64(result.Skipped()))

	l.logger.Debug("Batch written",
		zap.Int("batch", result.Index),
		zap.Int("records", result.Records),
		zap.Int64("rowsInserted", result.Inserted),
		zap.Int("attempts", result.Attempts),
		zap.Duration("duration", result.Duration))
}
