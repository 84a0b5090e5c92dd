package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/port"
)

var _ port.Locker = (*RedisLocker)(nil)

const redisLockPrefix = "lock:inventory:"

type RedisLockerConfig struct {
	// Expiry bounds how long a crashed holder can block the key
	Expiry     time.Duration
	RetryDelay time.Duration
}

// RedisLocker serializes mutations of a key across service instances.
type RedisLocker struct {
	rs     *redsync.Redsync
	cfg    RedisLockerConfig
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, cfg RedisLockerConfig, logger *zap.Logger) *RedisLocker {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		cfg:    cfg,
		logger: logger,
	}
}

// Lock retries until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := redisLockPrefix + key
	mutex := l.rs.NewMutex(name,
		redsync.WithExpiry(l.cfg.Expiry),
		redsync.WithTries(1),
	)

	for {
		err := mutex.LockContext(ctx)
		if err == nil {
			break
		}
		// Contention and transient redis errors both retry until ctx gives up.
		if !errors.Is(err, redsync.ErrFailed) {
			l.logger.Debug("redis lock attempt failed", zap.String("key", name), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", name, ctx.Err())
		case <-time.After(l.cfg.RetryDelay):
		}
	}

	return func() {
		if ok, err := mutex.UnlockContext(context.Background()); !ok || err != nil {
			l.logger.Warn("release redis lock", zap.String("key", name), zap.Bool("ok", ok), zap.Error(err))
		}
	}, nil
}
