package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/acquire"
	"github.com/1vers1on/uls-ingress/pkg/audit"
	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/connector"
	"github.com/1vers1on/uls-ingress/pkg/converter"
	"github.com/1vers1on/uls-ingress/pkg/lock"
	"github.com/1vers1on/uls-ingress/pkg/migration"
)

// DefaultDeps wires the production collaborators for cfg. The run lock is
// left unset; see RedisLock.
func DefaultDeps(cfg *config.Config, logger *zap.Logger) Deps {
	factory := connector.NewConnectorFactory(cfg, logger)

	return Deps{
		Acquire: func(ctx context.Context, runID string, progress acquire.ProgressFunc) (*acquire.Dataset, error) {
			a := acquire.NewAcquirer(acquire.Config{
				SourceURL:   cfg.Source.URL,
				WorkDirRoot: cfg.Source.WorkDir,
				RunID:       runID,
				Timeout:     cfg.Source.DownloadTimeout,
				RetryMax:    cfg.Source.DownloadRetries,
			}, logger)
			return a.Acquire(ctx, progress)
		},

		OpenStore: func(ctx context.Context) (Store, error) {
			return factory.CreateDestination(ctx)
		},

		Migrate: func(ctx context.Context, store Store) error {
			if sf, ok := store.(*connector.SnowflakeConnector); ok {
				return sf.CreateTableIfNotExists(ctx)
			}
			return migration.NewService(logger, &migration.Config{}).MigrateDestination(cfg)
		},

		Audit: func(store Store) audit.Sink {
			dest, ok := store.(connector.Destination)
			if !ok || dest.Dialect() == converter.DialectSnowflake {
				return nil
			}
			rec, err := audit.NewRecorder(dest.DB(), dest.Dialect(), logger)
			if err != nil {
				logger.Warn("Audit recorder unavailable", zap.Error(err))
				return nil
			}
			return rec
		},
	}
}

// RedisLock guards runs with a Redis lock held for at most ttl
func RedisLock(locker *lock.Locker, ttl time.Duration) LockFunc {
	return func(ctx context.Context) (func(context.Context) error, error) {
		held, err := locker.Acquire(ctx, RunLockKey, ttl)
		if errors.Is(err, lock.ErrLockNotAcquired) {
			return nil, ErrRunInProgress
		}
		if err != nil {
			return nil, err
		}
		return held.Release, nil
	}
}
