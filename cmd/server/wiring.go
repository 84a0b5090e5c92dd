package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/adapter/audit"
	"github.com/rl1809/wip-inventory/internal/adapter/catalog"
	"github.com/rl1809/wip-inventory/internal/adapter/lock"
	"github.com/rl1809/wip-inventory/internal/adapter/storage"
	"github.com/rl1809/wip-inventory/internal/config"
	"github.com/rl1809/wip-inventory/internal/port"
	"github.com/rl1809/wip-inventory/migrations"
)

// infra holds the selected backends and the connections behind them.
type infra struct {
	ledger  port.Ledger
	txlog   port.TransactionLog
	catalog port.LocationCatalog
	locker  port.Locker

	redis   *redis.Client
	closers []func() error
}

func (i *infra) Close(logger *zap.Logger) {
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil {
			logger.Warn("close connection", zap.Error(err))
		}
	}
	logger.Info("connections closed")
}

func openInfra(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *infra, err error) {
	in := &infra{}
	defer func() {
		if err != nil {
			in.Close(logger)
		}
	}()

	if cfg.UsesRedis() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		in.redis = rdb
		in.closers = append(in.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	locations := cfg.Locations
	if len(locations) == 0 {
		locations = catalog.DefaultLocations
	}
	in.catalog = catalog.NewStaticCatalog(locations)

	switch cfg.LedgerBackend {
	case config.BackendMemory:
		mem := storage.NewMemoryLedger()
		in.ledger, in.txlog = mem, mem

	case config.BackendMySQL:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		in.closers = append(in.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		logger.Info("connected to mysql", zap.String("dsn", config.MaskDSN(cfg.MySQLDSN)))
		if cfg.RunMigrations {
			if err := migrations.UpDir(ctx, db, "mysql", cfg.MigrationsDir); err != nil {
				return nil, err
			}
		}

		ledger := storage.NewMySQLLedger(db)
		in.ledger, in.txlog = ledger, ledger
		if cfg.LocationSource == config.BackendMySQL {
			in.catalog = ledger
		}

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		in.closers = append(in.closers, func() error { pool.Close(); return nil })

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres", zap.String("dsn", config.MaskDSN(cfg.PostgresDSN)))
		if cfg.RunMigrations {
			db := stdlib.OpenDBFromPool(pool)
			err := migrations.UpDir(ctx, db, "postgres", cfg.MigrationsDir)
			db.Close()
			if err != nil {
				return nil, err
			}
		}

		ledger := storage.NewPostgresLedger(pool)
		in.ledger, in.txlog = ledger, ledger
		if cfg.LocationSource == config.BackendPostgres {
			in.catalog = ledger
		}

	case config.BackendRedis:
		ledger := storage.NewRedisLedger(in.redis)
		in.ledger, in.txlog = ledger, ledger
		if cfg.LocationSource == config.BackendRedis {
			if err := seedRedisLocations(ctx, ledger, locations); err != nil {
				return nil, err
			}
			in.catalog = ledger
		}
	}

	if cfg.LockBackend == config.LockRedis {
		in.locker = lock.NewRedisLocker(in.redis, lock.RedisLockerConfig{Expiry: cfg.LockExpiry()}, logger)
	} else {
		in.locker = lock.NewKeyedLocker()
	}
	return in, nil
}

// seedRedisLocations stores the configured list when Redis has none yet.
func seedRedisLocations(ctx context.Context, ledger *storage.RedisLedger, codes []string) error {
	existing, err := ledger.Locations(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return ledger.SetLocations(ctx, codes)
}

// buildAudit assembles the sink chain: the log sink always, Kafka and Mongo
// when configured, all behind one dispatcher. The returned func drains it.
func buildAudit(ctx context.Context, cfg config.Config, in *infra, logger *zap.Logger) (port.AuditSink, func(), error) {
	var dedup audit.DedupCache = audit.NewMemoryDedup(cfg.AuditDedupTTL, cfg.AuditDedupSize)
	if cfg.AuditDedupRedis {
		dedup = audit.NewRedisDedup(in.redis, cfg.AuditDedupTTL)
	}
	sinks := audit.Fanout{audit.NewLogSink(logger, dedup)}
	var closers []func() error

	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := audit.NewKafkaSink(logger, cfg.KafkaBrokers, cfg.KafkaAuditTopic, audit.BreakerConfig{})
		sinks = append(sinks, kafkaSink)
		closers = append(closers, kafkaSink.Close)
		logger.Info("publishing audit events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaAuditTopic))
	}

	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		mongoSink := audit.NewMongoSink(client, cfg.MongoDB)
		if err := mongoSink.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo audit indexes", zap.Error(err))
		}
		sinks = append(sinks, mongoSink)
		closers = append(closers, func() error { return client.Disconnect(context.Background()) })
		logger.Info("storing audit events in mongo", zap.String("uri", config.MaskDSN(cfg.MongoURI)), zap.String("db", cfg.MongoDB))
	}

	dispatcher := audit.NewDispatcher(sinks, audit.DispatcherConfig{
		Workers:   cfg.AuditWorkers,
		QueueSize: cfg.AuditQueueSize,
	}, logger)

	return dispatcher, func() {
		dispatcher.Close()
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close audit sink", zap.Error(err))
			}
		}
	}, nil
}
