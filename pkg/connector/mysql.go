package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/converter"
	"github.com/1vers1on/uls-ingress/pkg/model"
)

// MySQLConnector writes licenses to MySQL or MariaDB
type MySQLConnector struct {
	db     *sqlx.DB
	logger *zap.Logger
	cfg    *config.MySQLConfig
	table  *model.TableMetadata
}

// NewMySQLConnector creates and initializes a new MySQL connector
func NewMySQLConnector(ctx context.Context, cfg *config.MySQLConfig, table string, logger *zap.Logger) (*MySQLConnector, error) {
	logger = logger.Named("mysql-connector")

	logger.Info("Connecting to MySQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	db, err := sqlx.Open("mysql", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL connection: %w", err)
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
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	connector := &MySQLConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
		table:  model.LicenseTable("", table),
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *MySQLConnector) DB() *sqlx.DB {
	return c.db
}

// Dialect returns the SQL flavour of the store
func (c *MySQLConnector) Dialect() converter.Dialect {
	return converter.DialectMySQL
}

// Table returns the destination table metadata
func (c *MySQLConnector) Table() *model.TableMetadata {
	return c.table
}

// Validate checks the server version and that the destination table exists
func (c *MySQLConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.GetContext(ctx, &version, "SELECT VERSION()"); err != nil {
		return fmt.Errorf("failed to query MySQL version: %w", err)
	}
	c.logger.Info("Connected to MySQL", zap.String("version", version))

	sb := sqlbuilder.MySQL.NewSelectBuilder()
	sb.Select("COUNT(*)").
		From("information_schema.tables").
		Where(
			sb.Equal("table_schema", c.cfg.Database),
			sb.Equal("table_name", c.table.Table),
		)
	query, args := sb.Build()

	var n int
	if err := c.db.GetContext(ctx, &n, query, args...); err != nil {
		return fmt.Errorf("failed to check table %s: %w", c.table.Table, err)
	}
	if n == 0 {
		return fmt.Errorf("table %s does not exist, run migrations first", c.table.Table)
	}

	return nil
}

// Close closes the database connection
func (c *MySQLConnector) Close() error {
	c.logger.Info("Closing MySQL connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *MySQLConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}

// InsertIgnore inserts the batch with INSERT IGNORE, skipping existing call signs
func (c *MySQLConnector) InsertIgnore(ctx context.Context, licenses []model.License) (int64, error) {
	if len(licenses) == 0 {
		return 0, nil
	}

	query, args := buildMySQLInsert(c.table, licenses)
	result, err := c.ExecWithTimeout(ctx, query, DefaultStatementTimeout, args...)
	if err != nil {
		return 0, fmt.Errorf("batch insert failed: %w", err)
	}

	return insertedRows(c.logger, result), nil
}

// CountRows returns the number of rows in the destination table
func (c *MySQLConnector) CountRows(ctx context.Context) (int64, error) {
	sb := sqlbuilder.MySQL.NewSelectBuilder()
	sb.Select("COUNT(*)").From(c.table.QualifiedName())
	query, _ := sb.Build()
	return countRows(ctx, c.db, query)
}

func buildMySQLInsert(table *model.TableMetadata, licenses []model.License) (string, []interface{}) {
	ib := sqlbuilder.MySQL.NewInsertBuilder()
	ib.InsertIgnoreInto(table.QualifiedName())
	ib.Cols(table.ColumnNames()...)
	for i := range licenses {
		ib.Values(licenses[i].Values()...)
	}
	return ib.Build()
}
