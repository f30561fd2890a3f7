package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/converter"
	"github.com/1vers1on/uls-ingress/pkg/model"
)

// PostgresConnector writes licenses to PostgreSQL through pgx or lib/pq
type PostgresConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.PostgresConfig
	table  *model.TableMetadata
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig, table string, logger *zap.Logger) (*PostgresConnector, error) {
	logger = logger.Named("postgres-connector")

	logger.Info("Connecting to PostgreSQL",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sqlx.Open(cfg.Driver, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if err := PingWithTimeout(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	connector := &PostgresConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
		table:  model.LicenseTable(cfg.Schema, table),
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sqlx.DB {
	return c.db
}

// Dialect returns the SQL flavour of the store
func (c *PostgresConnector) Dialect() converter.Dialect {
	return converter.DialectPostgres
}

// Table returns the destination table metadata
func (c *PostgresConnector) Table() *model.TableMetadata {
	return c.table
}

// Validate checks the server version and that the destination table exists
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.GetContext(ctx, &version, "SELECT version()"); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	var exists bool
	err := c.db.GetContext(ctx, &exists, "SELECT to_regclass($1) IS NOT NULL", c.table.QualifiedName())
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", c.table.QualifiedName(), err)
	}
	if !exists {
		return fmt.Errorf("table %s does not exist, run migrations first", c.table.QualifiedName())
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("database", c.cfg.Database),
		zap.String("table", c.table.QualifiedName()))

	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *PostgresConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}

// InsertIgnore inserts the batch in one statement, skipping existing call signs
func (c *PostgresConnector) InsertIgnore(ctx context.Context, licenses []model.License) (int64, error) {
	if len(licenses) == 0 {
		return 0, nil
	}

	query, args := buildPostgresInsert(c.table, licenses)
	result, err := c.ExecWithTimeout(ctx, query, DefaultStatementTimeout, args...)
	if err != nil {
		return 0, fmt.Errorf("batch insert failed: %w", err)
	}

	return insertedRows(c.logger, result), nil
}

// CountRows returns the number of rows in the destination table
func (c *PostgresConnector) CountRows(ctx context.Context) (int64, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)").From(c.table.QualifiedName())
	query, _ := sb.Build()
	return countRows(ctx, c.db, query)
}

func buildPostgresInsert(table *model.TableMetadata, licenses []model.License) (string, []interface{}) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table.QualifiedName())
	ib.Cols(table.ColumnNames()...)
	for i := range licenses {
		ib.Values(licenses[i].Values()...)
	}

	query, args := ib.Build()
	query += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", table.PrimaryKeys[0])
	return query, args
}
