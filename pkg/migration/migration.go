package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/converter"
)

//go:embed sql/postgres/*.sql sql/mysql/*.sql
var migrationFS embed.FS

var upFile = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// ErrUnsupportedDialect is returned for destinations managed outside golang-migrate
var ErrUnsupportedDialect = errors.New("no migrations for dialect")

// Logger adapts zap to the migrate.Logger interface
type Logger struct {
	*zap.SugaredLogger
}

func (l Logger) Verbose() bool {
	return true
}

func (l Logger) Printf(format string, v ...any) {
	l.Infof(strings.TrimSuffix(format, "\n"), v...)
}

// Config selects the migration target
type Config struct {
	Version      uint // 0 migrates to the latest version
	Force        int  // non-zero forces the recorded version before migrating
	AutoRollback bool // If enabled, a dirty version is forced back to the previous version on failure
}

// Service applies the embedded schema migrations
type Service struct {
	config *Config
	logger *zap.Logger
}

// NewService creates a migration service
func NewService(logger *zap.Logger, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}
	return &Service{
		config: config,
		logger: logger.Named("migration"),
	}
}

// MigrateDestination opens a dedicated connection to the configured destination and migrates it.
// The connection is closed when done.
func (s *Service) MigrateDestination(cfg *config.Config) error {
	dialect, dbName, db, err := openDestination(cfg)
	if err != nil {
		return err
	}
	return s.Migrate(dialect, dbName, db)
}

// DestinationVersion reports the migration version of the configured destination
func (s *Service) DestinationVersion(cfg *config.Config) (uint, bool, error) {
	dialect, dbName, db, err := openDestination(cfg)
	if err != nil {
		return 0, false, err
	}
	return s.Version(dialect, dbName, db)
}

func openDestination(cfg *config.Config) (converter.Dialect, string, *sql.DB, error) {
	switch cfg.Destination {
	case config.DestinationPostgres:
		db, err := sql.Open(cfg.Postgres.Driver, cfg.Postgres.ConnectionString())
		if err != nil {
			return "", "", nil, errors.Wrap(err, "failed to open PostgreSQL for migrations")
		}
		return converter.DialectPostgres, cfg.Postgres.Database, db, nil
	case config.DestinationMySQL:
		db, err := sql.Open("mysql", cfg.MySQL.ConnectionString())
		if err != nil {
			return "", "", nil, errors.Wrap(err, "failed to open MySQL for migrations")
		}
		return converter.DialectMySQL, cfg.MySQL.Database, db, nil
	default:
		return "", "", nil, errors.Wrapf(ErrUnsupportedDialect, "destination %s", cfg.Destination)
	}
}

// Migrate runs the migrations for dialect against db. It takes ownership of db.
func (s *Service) Migrate(dialect converter.Dialect, databaseName string, db *sql.DB) error {
	m, err := s.newMigrate(dialect, databaseName, db)
	if err != nil {
		db.Close()
		return err
	}
	defer s.close(m)

	return s.runMigration(m, dialect)
}

// Version reports the applied version and dirty flag. It takes ownership of db.
func (s *Service) Version(dialect converter.Dialect, databaseName string, db *sql.DB) (uint, bool, error) {
	m, err := s.newMigrate(dialect, databaseName, db)
	if err != nil {
		db.Close()
		return 0, false, err
	}
	defer s.close(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to read migration version")
	}
	return version, dirty, nil
}

func (s *Service) newMigrate(dialect converter.Dialect, databaseName string, db *sql.DB) (*migrate.Migrate, error) {
	folder, err := sourceFolder(dialect)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationFS, folder)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("migration folder %s is not readable", folder))
	}

	var driver database.Driver
	switch dialect {
	case converter.DialectPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{DatabaseName: databaseName})
	case converter.DialectMySQL:
		driver, err = mysql.WithInstance(db, &mysql.Config{DatabaseName: databaseName})
	}
	if err != nil {
		src.Close()
		s.logger.Error("Failed to create migration driver", zap.Error(err))
		return nil, errors.Wrap(err, "failed to create migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, databaseName, driver)
	if err != nil {
		s.logger.Error("Failed to create migrate instance", zap.Error(err))
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = Logger{SugaredLogger: s.logger.Sugar()}

	return m, nil
}

func (s *Service) close(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		s.logger.Warn("Failed to close migrate instance",
			zap.NamedError("sourceError", srcErr),
			zap.NamedError("databaseError", dbErr))
	}
}

func (s *Service) runMigration(m *migrate.Migrate, dialect converter.Dialect) error {
	if s.config.Force != 0 {
		if err := m.Force(s.config.Force); err != nil {
			s.logger.Error("Failed to force database version",
				zap.Int("version", s.config.Force),
				zap.Error(err))
			return errors.Wrapf(err, "failed to force version %d", s.config.Force)
		}
	}

	version, _, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		s.logger.Error("Failed to get current migration version", zap.Error(versionErr))
	}

	done := make(chan struct{})
	go s.logProgress(done)

	startTime := time.Now()

	var migrationErr error
	if s.config.Version != 0 {
		migrationErr = m.Migrate(s.config.Version)
	} else {
		migrationErr = m.Up()
	}

	close(done)

	s.logger.Info("Database migrations finished", zap.Duration("elapsed", time.Since(startTime)))

	return s.handleMigrationError(m, dialect, migrationErr, version)
}

func (s *Service) logProgress(done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	dots := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			dots = (dots + 1) % 4
			s.logger.Debug("Executing database migrations" + strings.Repeat(".", dots))
		}
	}
}

func (s *Service) handleMigrationError(m *migrate.Migrate, dialect converter.Dialect, err error, previousVersion uint) error {
	if err == nil {
		s.logger.Info("Successfully applied migrations")
		return nil
	}

	if errors.Is(err, migrate.ErrNoChange) {
		s.logger.Info("No new migrations to apply")
		return nil
	}

	// The recorded version is newer than anything embedded, usually after a rollback of the binary
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, latestErr := LatestVersion(dialect)
		if latestErr != nil {
			return errors.Wrap(latestErr, "failed to get latest migration version")
		}
		s.logger.Warn("No migration found for recorded version, forcing latest",
			zap.Uint("version", previousVersion),
			zap.Int("latest", latest))
		if err := m.Force(latest); err != nil {
			return errors.Wrapf(err, "failed to force version %d", latest)
		}
		return nil
	}

	s.logger.Error("Migration failed", zap.Error(err))

	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		s.logger.Error("Failed to get current migration version", zap.Error(versionErr))
		return errors.Wrap(err, "migration failed")
	}

	if s.config.AutoRollback && dirty {
		if previousVersion == 0 && version > 0 {
			previousVersion = version - 1
		}

		s.logger.Warn("Database is dirty, reverting version",
			zap.Uint("version", version),
			zap.Uint("previousVersion", previousVersion))

		if forceErr := m.Force(int(previousVersion)); forceErr != nil {
			s.logger.Error("Failed to force database version",
				zap.Uint("version", previousVersion),
				zap.Error(forceErr))
			return errors.Wrapf(forceErr, "failed to revert to version %d", previousVersion)
		}

		// still an error so the run does not continue against a partial schema
		return errors.Wrap(err, "migration failed and was rolled back")
	}

	s.logger.Error("Failed to apply migrations",
		zap.Bool("dirty", dirty),
		zap.Uint("version", version))
	return errors.Wrap(err, "migration failed")
}

// LatestVersion returns the highest embedded migration version for dialect
func LatestVersion(dialect converter.Dialect) (int, error) {
	folder, err := sourceFolder(dialect)
	if err != nil {
		return 0, err
	}

	files, err := fs.ReadDir(migrationFS, folder)
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		matches := upFile.FindStringSubmatch(file.Name())
		if len(matches) > 1 {
			version, err := strconv.Atoi(matches[1])
			if err != nil {
				return 0, err
			}
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", folder)
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}

func sourceFolder(dialect converter.Dialect) (string, error) {
	switch dialect {
	case converter.DialectPostgres:
		return "sql/postgres", nil
	case converter.DialectMySQL:
		return "sql/mysql", nil
	default:
		return "", errors.Wrapf(ErrUnsupportedDialect, "dialect %s", dialect)
	}
}
