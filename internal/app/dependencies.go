// Package app wires configuration, connections and services shared by the
// API, the worker and the operator tools.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// Dependencies holds the live connections for one process.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	Pool   *pgxpool.Pool
	Store  *db.PGStore
	Redis  *redis.Client
	Tasks  *asynq.Client
}

// Open connects to PostgreSQL and Redis and, when enabled, applies pending
// migrations first. applicationName is reported to PostgreSQL.
func Open(ctx context.Context, cfg *config.Config, o *Observability, applicationName string) (*Dependencies, error) {
	if cfg.DBAutoMigrate {
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		o.Logger.Info().Msg("database migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	tracer := obs.PGXTracer{}
	if o.MetricsEnabled {
		tracer.Duration = obs.NewPGXQueryHistogram(o.MetricsNamespace, nil)
	}
	poolConfig.ConnConfig.Tracer = tracer
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		o.Logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if o.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			o.Logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	connOpt, err := RedisConnOpt(cfg)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}

	return &Dependencies{
		Config: cfg,
		Logger: o.Logger,
		Pool:   pool,
		Store:  db.NewStore(pool),
		Redis:  rdb,
		Tasks:  asynq.NewClient(connOpt),
	}, nil
}

// RedisConnOpt converts REDIS_URL into asynq connection options.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for asynq: %w", err)
	}
	return opt, nil
}

// Close releases every connection.
func (d *Dependencies) Close() {
	if d.Tasks != nil {
		if err := d.Tasks.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}
