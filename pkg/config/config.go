package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/1vers1on/uls-ingress/pkg/model"
)

// Supported destinations
const (
	DestinationPostgres  = "postgres"
	DestinationMySQL     = "mysql"
	DestinationSnowflake = "snowflake"
)

// MaxBindParameters is the per-statement placeholder limit of PostgreSQL and MySQL
const MaxBindParameters = 65535

// MaxBatchSize returns the largest batch whose insert fits in one statement
func MaxBatchSize() int {
	return MaxBindParameters / len(model.LicenseTable("", "").Columns)
}

// Config represents the application configuration
type Config struct {
	Source SourceConfig

	// Destination store
	Destination  string
	Table        string
	AutoMigrate  bool
	AuditEnabled bool
	Postgres     *PostgresConfig
	MySQL        *MySQLConfig
	Snowflake    *SnowflakeConfig

	// Load settings
	BatchSize       int
	RetryAttempts   int
	RetryDelay      time.Duration
	VerifyLoad      bool
	VerifyTimeout   time.Duration
	IncludeStatuses []model.LicenseStatus

	// Run lock, nil when no Redis host is configured
	Redis   *RedisConfig
	LockTTL time.Duration

	// Scheduling
	IngestSchedule      string
	MaintenanceSchedule string
	MetricsAddr         string

	// Logging
	LogLevel  string
	LogFormat string
}

// SourceConfig describes where the archive comes from and where it is unpacked
type SourceConfig struct {
	URL             string
	WorkDir         string
	DownloadTimeout time.Duration
	DownloadRetries int
	StaleWorkDirAge time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Source: SourceConfig{
			URL:             getEnv("ULS_SOURCE_URL", "https://data.fcc.gov/download/pub/uls/complete/l_amat.zip"),
			WorkDir:         getEnv("WORK_DIR", filepath.Join(os.TempDir(), "fcc-import")),
			DownloadTimeout: time.Duration(getEnvAsInt("DOWNLOAD_TIMEOUT_SECONDS", 1800)) * time.Second,
			DownloadRetries: getEnvAsInt("DOWNLOAD_RETRIES", 3),
			StaleWorkDirAge: time.Duration(getEnvAsInt("STALE_WORK_DIR_HOURS", 6)) * time.Hour,
		},

		Destination:  strings.ToLower(getEnv("DESTINATION", DestinationPostgres)),
		Table:        getEnv("DEST_TABLE", "callsigns"),
		AutoMigrate:  getEnvAsBool("DB_AUTO_MIGRATE", false),
		AuditEnabled: getEnvAsBool("AUDIT_ENABLED", true),

		BatchSize:     getEnvAsInt("BATCH_SIZE", 1000),
		RetryAttempts: getEnvAsInt("BATCH_RETRY_ATTEMPTS", 0),
		RetryDelay:    time.Duration(getEnvAsInt("BATCH_RETRY_DELAY_MS", 1000)) * time.Millisecond,
		VerifyLoad:    getEnvAsBool("VERIFY_LOAD", true),
		VerifyTimeout: time.Duration(getEnvAsInt("VERIFY_TIMEOUT_SECONDS", 300)) * time.Second,

		LockTTL: time.Duration(getEnvAsInt("LOCK_TTL_SECONDS", 7200)) * time.Second,

		IngestSchedule:      getEnv("INGEST_SCHEDULE", "0 0 4 * * *"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 */15 * * * *"),
		MetricsAddr:         getEnv("METRICS_ADDR", ":9102"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	statuses, err := parseStatuses(getEnvAsStringSlice("INCLUDE_STATUSES", []string{string(model.StatusActive)}))
	if err != nil {
		return nil, err
	}
	cfg.IncludeStatuses = statuses

	// Only the selected destination has to be configured
	switch cfg.Destination {
	case DestinationPostgres:
		cfg.Postgres, err = LoadPostgresConfig()
	case DestinationMySQL:
		cfg.MySQL, err = LoadMySQLConfig()
	case DestinationSnowflake:
		cfg.Snowflake, err = LoadSnowflakeConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s configuration: %w", cfg.Destination, err)
	}

	cfg.Redis = LoadRedisConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.Destination {
	case DestinationPostgres:
		if c.Postgres == nil {
			return errors.New("postgreSQL configuration is required")
		}
	case DestinationMySQL:
		if c.MySQL == nil {
			return errors.New("mySQL configuration is required")
		}
	case DestinationSnowflake:
		if c.Snowflake == nil {
			return errors.New("snowflake configuration is required")
		}
	default:
		return fmt.Errorf("unknown destination %q", c.Destination)
	}

	if c.Table == "" {
		return errors.New("destination table is required")
	}

	if c.Source.URL == "" {
		return errors.New("source URL is required")
	}

	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}

	if c.Destination != DestinationSnowflake && c.BatchSize > MaxBatchSize() {
		return fmt.Errorf("batch size %d exceeds %d, the most rows one %s insert can bind", c.BatchSize, MaxBatchSize(), c.Destination)
	}

	if c.RetryAttempts < 0 {
		return errors.New("retry attempts cannot be negative")
	}

	if len(c.IncludeStatuses) == 0 {
		return errors.New("at least one included status is required")
	}

	if c.Redis != nil && c.LockTTL <= 0 {
		return errors.New("lock TTL must be positive")
	}

	return nil
}

// LockEnabled reports whether runs are guarded by a Redis lock
func (c *Config) LockEnabled() bool {
	return c.Redis != nil
}

func parseStatuses(names []string) ([]model.LicenseStatus, error) {
	statuses := make([]model.LicenseStatus, 0, len(names))
	for _, name := range names {
		status, ok := model.ParseLicenseStatus(name)
		if !ok {
			return nil, fmt.Errorf("invalid status %q in INCLUDE_STATUSES", name)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma-separated list, dropping empty entries
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.Trim(strings.TrimSpace(v), `"`); v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}
