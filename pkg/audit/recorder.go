package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/converter"
	"github.com/1vers1on/uls-ingress/pkg/model"
)

const (
	// TableName is the audit table created by the migrations
	TableName = "ingest_audit"
	// DefaultBatchSize bounds the rows per audit insert
	DefaultBatchSize = 500
	// MaxValueLen truncates recorded source values
	MaxValueLen = 255
)

var auditColumns = []string{"run_id", "callsign", "source", "field", "reason", "value"}

// Recorder persists audit flags to the ingest_audit table
type Recorder struct {
	db        *sqlx.DB
	flavor    sqlbuilder.Flavor
	batchSize int
	logger    *zap.Logger
}

// NewRecorder creates a Recorder writing through db in the given dialect
func NewRecorder(db *sqlx.DB, dialect converter.Dialect, logger *zap.Logger) (*Recorder, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	var flavor sqlbuilder.Flavor
	switch dialect {
	case converter.DialectPostgres:
		flavor = sqlbuilder.PostgreSQL
	case converter.DialectMySQL:
		flavor = sqlbuilder.MySQL
	default:
		return nil, fmt.Errorf("audit table not supported for dialect %s", dialect)
	}

	return &Recorder{
		db:        db,
		flavor:    flavor,
		batchSize: DefaultBatchSize,
		logger:    logger.Named("audit"),
	}, nil
}

// Flush writes all flags stamped with runID, one transaction per batch.
// It returns the number of flags written before any failure.
func (r *Recorder) Flush(ctx context.Context, runID string, flags []model.AuditFlag) (int, error) {
	if len(flags) == 0 {
		return 0, nil
	}
	if _, err := uuid.Parse(runID); err != nil {
		return 0, fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	start := time.Now()
	written := 0
	for offset := 0; offset < len(flags); offset += r.batchSize {
		end := offset + r.batchSize
		if end > len(flags) {
			end = len(flags)
		}

		if err := r.writeBatch(ctx, runID, flags[offset:end]); err != nil {
			return written, err
		}
		written += end - offset
	}

	r.logger.Info("Recorded audit flags",
		zap.String("runId", runID),
		zap.Int("count", written),
		zap.Duration("duration", time.Since(start)))
	return written, nil
}

func (r *Recorder) writeBatch(ctx context.Context, runID string, flags []model.AuditFlag) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	query, args := buildInsert(r.flavor, runID, flags)
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert audit flags: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func buildInsert(flavor sqlbuilder.Flavor, runID string, flags []model.AuditFlag) (string, []interface{}) {
	ib := flavor.NewInsertBuilder()
	ib.InsertInto(TableName)
	ib.Cols(auditColumns...)
	for _, f := range flags {
		ib.Values(runID, f.Callsign, f.Source, f.Field, string(f.Reason), toNullableString(truncate(f.Value, MaxValueLen)))
	}
	return ib.Build()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func toNullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
