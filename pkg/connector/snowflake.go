package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/converter"
	"github.com/1vers1on/uls-ingress/pkg/model"
)

// SnowflakeConnector writes licenses to a Snowflake table. Snowflake does not
// enforce primary keys, so inserts go through MERGE ... WHEN NOT MATCHED.
type SnowflakeConnector struct {
	db        *sqlx.DB
	logger    *zap.Logger
	cfg       *config.SnowflakeConfig
	table     *model.TableMetadata
	converter *converter.TypeConverter
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig, table string, logger *zap.Logger) (*SnowflakeConnector, error) {
	logger = logger.Named("snowflake-connector")

	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Schema:        cfg.Schema,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	db, err := sqlx.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Snowflake connection: %w", err)
	}

	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Snowflake: %w", err)
	}

	if cfg.QueryTimeout > 0 {
		_, err = db.ExecContext(
			ctx,
			fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d",
				int(cfg.QueryTimeout.Seconds())),
		)
		if err != nil {
			logger.Warn("Failed to set statement timeout", zap.Error(err))
		}
	}

	connector := &SnowflakeConnector{
		db:        db,
		logger:    logger,
		cfg:       cfg,
		table:     model.LicenseTable(cfg.Schema, table),
		converter: converter.NewTypeConverter(logger, converter.DialectSnowflake),
	}

	LogConnectionStats(logger, cfg.Database, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sqlx.DB {
	return c.db
}

// Dialect returns the SQL flavour of the store
func (c *SnowflakeConnector) Dialect() converter.Dialect {
	return converter.DialectSnowflake
}

// Table returns the destination table metadata
func (c *SnowflakeConnector) Table() *model.TableMetadata {
	return c.table
}

// Validate verifies the Snowflake session and access rights
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, warehouse sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("warehouse", warehouse.String))

	if !strings.EqualFold(database.String, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, c.cfg.Database)
	}

	return nil
}

// CreateTableIfNotExists creates the license table from its metadata
func (c *SnowflakeConnector) CreateTableIfNotExists(ctx context.Context) error {
	query, err := c.createTableStatement()
	if err != nil {
		return err
	}

	if _, err := c.ExecWithTimeout(ctx, query, DefaultStatementTimeout); err != nil {
		return fmt.Errorf("failed to create table %s: %w", c.table.QualifiedName(), err)
	}

	c.logger.Info("Destination table ready", zap.String("table", c.table.QualifiedName()))
	return nil
}

func (c *SnowflakeConnector) createTableStatement() (string, error) {
	definitions, err := c.converter.GenerateColumnDefinitions(c.table)
	if err != nil {
		return "", fmt.Errorf("failed to generate column definitions: %w", err)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		c.qualifiedName(), strings.Join(definitions, ",\n  ")), nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	LogConnectionStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *SnowflakeConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}

// InsertIgnore merges the batch, inserting only call signs not already present
func (c *SnowflakeConnector) InsertIgnore(ctx context.Context, licenses []model.License) (int64, error) {
	licenses = uniqueByCallsign(licenses)
	if len(licenses) == 0 {
		return 0, nil
	}

	query, args := buildSnowflakeMerge(c.converter, c.qualifiedName(), c.table, licenses)
	result, err := c.ExecWithTimeout(ctx, query, DefaultStatementTimeout, args...)
	if err != nil {
		return 0, fmt.Errorf("batch merge failed: %w", err)
	}

	return insertedRows(c.logger, result), nil
}

// CountRows returns the number of rows in the destination table
func (c *SnowflakeConnector) CountRows(ctx context.Context) (int64, error) {
	return countRows(ctx, c.db, "SELECT COUNT(*) FROM "+c.qualifiedName())
}

func (c *SnowflakeConnector) qualifiedName() string {
	name := c.converter.QuoteIdentifier(c.table.Table)
	if c.table.Schema != "" {
		name = c.converter.QuoteIdentifier(c.table.Schema) + "." + name
	}
	return name
}

// buildSnowflakeMerge renders a MERGE whose source is a VALUES list with one
// placeholder per column. Date columns are cast so bound timestamps land as DATE.
func buildSnowflakeMerge(conv *converter.TypeConverter, target string, table *model.TableMetadata, licenses []model.License) (string, []interface{}) {
	cols := make([]string, len(table.Columns))
	projections := make([]string, len(table.Columns))
	sourceCols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = conv.QuoteIdentifier(col.Name)
		expr := fmt.Sprintf("$%d", i+1)
		if col.Kind == model.KindDate {
			expr += "::DATE"
		}
		projections[i] = expr + " AS " + cols[i]
		sourceCols[i] = "s." + cols[i]
	}

	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	rows := make([]string, len(licenses))
	args := make([]interface{}, 0, len(licenses)*len(cols))
	for i := range licenses {
		rows[i] = rowPlaceholder
		args = append(args, licenses[i].Values()...)
	}

	on := make([]string, len(table.PrimaryKeys))
	for i, key := range table.PrimaryKeys {
		quoted := conv.QuoteIdentifier(key)
		on[i] = "t." + quoted + " = s." + quoted
	}

	query := fmt.Sprintf(
		"MERGE INTO %s t USING (SELECT %s FROM VALUES %s) s ON %s WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		target,
		strings.Join(projections, ", "),
		strings.Join(rows, ", "),
		strings.Join(on, " AND "),
		strings.Join(cols, ", "),
		strings.Join(sourceCols, ", "),
	)
	return query, args
}
