package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/config"
)

var (
	// ErrLockNotAcquired is returned when another holder owns the lock
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing or extending a lock that expired or changed hands
	ErrLockNotHeld = errors.New("lock not held")
)

// DefaultKeyPrefix namespaces lock keys
const DefaultKeyPrefix = "uls-ingress:"

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Locker hands out Redis-backed mutual exclusion locks
type Locker struct {
	rdb       redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// Lock is a held lock. Its value identifies this holder.
type Lock struct {
	locker *Locker
	key    string
	value  string
	ttl    time.Duration
}

// Connect opens a Redis client from cfg and verifies it with PING
func Connect(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*Locker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Addr()))
	return NewLocker(rdb, DefaultKeyPrefix, logger), nil
}

// NewLocker creates a Locker over an existing client
func NewLocker(rdb redis.UniversalClient, keyPrefix string, logger *zap.Logger) *Locker {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Locker{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		logger:    logger.Named("lock"),
	}
}

// Close closes the Redis client
func (l *Locker) Close() error {
	return l.rdb.Close()
}

// Acquire takes the lock with SET NX, or returns ErrLockNotAcquired
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.Debug("Acquired lock", zap.String("key", lockKey), zap.Duration("ttl", ttl))

	return &Lock{
		locker: l,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

// Key returns the full Redis key of the lock
func (lock *Lock) Key() string {
	return lock.key
}

// Release deletes the lock if this holder still owns it
func (lock *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.locker.rdb, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lock.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.locker.logger.Debug("Released lock", zap.String("key", lock.key))
	return nil
}

// Extend resets the lock TTL if this holder still owns it
func (lock *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, lock.locker.rdb, []string{lock.key}, lock.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", lock.key, err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.ttl = ttl
	return nil
}
