package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/converter"
	"github.com/1vers1on/uls-ingress/pkg/loader"
	"github.com/1vers1on/uls-ingress/pkg/model"
)

// DefaultStatementTimeout bounds a single batch statement
const DefaultStatementTimeout = 2 * time.Minute

// DatabaseConnector defines the interface for database connectors
type DatabaseConnector interface {
	// DB returns the underlying database connection
	DB() *sqlx.DB

	// Validate verifies the connection and that the destination table is usable
	Validate(ctx context.Context) error

	// Close closes the connection and releases resources
	Close() error

	// ExecWithTimeout executes a statement with a timeout
	ExecWithTimeout(ctx context.Context, query string, timeout time.Duration, args ...interface{}) (sql.Result, error)
}

// Destination is a license store: a connection that can insert-ignore and count
type Destination interface {
	DatabaseConnector
	loader.Store
	loader.Counter

	// Dialect returns the SQL flavour of the store
	Dialect() converter.Dialect

	// Table returns the destination table metadata
	Table() *model.TableMetadata
}

// ConnStats contains standardized connection statistics
type ConnStats struct {
	OpenConnections int
	InUse           int
	Idle            int
	MaxOpenConns    int
	WaitCount       int64
	WaitDuration    time.Duration
}

// GetConnectionStats returns connection pool statistics for logging
func GetConnectionStats(db *sqlx.DB) ConnStats {
	stats := db.Stats()
	return ConnStats{
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		MaxOpenConns:    stats.MaxOpenConnections,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
	}
}

// LogConnectionStats logs connection pool statistics
func LogConnectionStats(logger *zap.Logger, name string, db *sqlx.DB) {
	stats := GetConnectionStats(db)
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Int("openConnections", stats.OpenConnections),
		zap.Int("inUse", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("maxOpen", stats.MaxOpenConns),
		zap.Int64("waitCount", stats.WaitCount),
		zap.Duration("waitDuration", stats.WaitDuration),
	)
}

// PingWithTimeout attempts to ping a database with a timeout
func PingWithTimeout(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if pingCtx.Err() != nil {
			return fmt.Errorf("ping timed out after %v: %w", timeout, err)
		}
		return err
	}
	return nil
}

// ApplyConnectionSettings configures database connection pool settings
func ApplyConnectionSettings(db *sqlx.DB, maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) {
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if maxIdleTime > 0 {
		db.SetConnMaxIdleTime(maxIdleTime)
	}
}

// execWithTimeout is shared by the connectors
func execWithTimeout(ctx context.Context, db *sqlx.DB, query string, timeout time.Duration, args ...interface{}) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.ExecContext(queryCtx, query, args...)
}

// insertedRows reads RowsAffected from an insert-ignore style statement
func insertedRows(logger *zap.Logger, result sql.Result) int64 {
	n, err := result.RowsAffected()
	if err != nil {
		logger.Warn("Couldn't get rows affected", zap.Error(err))
		return 0
	}
	return n
}

// countRows runs SELECT COUNT(*) against the destination table
func countRows(ctx context.Context, db *sqlx.DB, query string) (int64, error) {
	var n int64
	if err := db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// uniqueByCallsign drops later licenses whose call sign already appeared in
// the batch. Stores without an enforced key need this to stay idempotent.
func uniqueByCallsign(licenses []model.License) []model.License {
	seen := make(map[string]struct{}, len(licenses))
	out := licenses[:0:0]
	for _, l := range licenses {
		if _, dup := seen[l.Callsign]; dup {
			continue
		}
		seen[l.Callsign] = struct{}{}
		out = append(out, l)
	}
	return out
}
