// Package app wires configuration, logging and the ingest pipeline into the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/lock"
	"github.com/1vers1on/uls-ingress/pkg/logging"
	"github.com/1vers1on/uls-ingress/pkg/pipeline"
)

// App holds the state shared by all commands
type App struct {
	version string

	envFiles  []string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *zap.Logger
}

// New creates an App. Configuration is loaded when a command runs.
func New(version string) *App {
	return &App{
		version:  version,
		envFiles: []string{".env", ".env.local"},
		logger:   zap.NewNop(),
	}
}

// Logger returns the application logger
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Shutdown flushes buffered log entries
func (a *App) Shutdown() {
	_ = a.logger.Sync()
}

// ContextWithSignals returns a context canceled on SIGINT or SIGTERM
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ExitOnError prints err to stderr and exits with status 1
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// loadEnvFiles loads .env files into the environment. Missing files are
// ignored and variables already set are never overridden.
func (a *App) loadEnvFiles() {
	for _, envFile := range a.envFiles {
		_ = godotenv.Load(envFile)
	}
}

// setup loads configuration and builds the logger. Flags override the environment.
func (a *App) setup() error {
	a.loadEnvFiles()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// newPipeline builds a pipeline with the production dependencies. The
// returned function releases the Redis connection, if any.
func (a *App) newPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	deps := pipeline.DefaultDeps(a.cfg, a.logger)
	cleanup := func() {}

	if a.cfg.LockEnabled() {
		locker, err := lock.Connect(ctx, a.cfg.Redis, a.logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to lock store: %w", err)
		}
		deps.Lock = pipeline.RedisLock(locker, a.cfg.LockTTL)
		cleanup = func() {
			if err := locker.Close(); err != nil {
				a.logger.Warn("Failed to close lock store", zap.Error(err))
			}
		}
	} else {
		a.logger.Warn("No lock store configured, concurrent runs are not prevented")
	}

	p, err := pipeline.New(a.cfg, deps, a.logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return p, cleanup, nil
}
