package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/motto-wall/internal/config"
	"github.com/sakif/motto-wall/internal/ratelimit"
	"github.com/sakif/motto-wall/internal/repository"
	pgRepo "github.com/sakif/motto-wall/internal/repository/postgres"
	sqliteRepo "github.com/sakif/motto-wall/internal/repository/sqlite"
)

// openStore opens the configured motto store and returns a function that
// releases it.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (repository.MottoRepository, func() error, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := pgRepo.NewPool(ctx, pgRepo.PoolConfig{
			DSN:             cfg.PostgresDSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			MaxConnIdleTime: cfg.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := pgRepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres store")
		return pgRepo.New(pool, cfg.QueryTimeout), func() error { pool.Close(); return nil }, nil

	default:
		if cfg.SQLitePath != ":memory:" {
			dir := filepath.Dir(cfg.SQLitePath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.SQLitePath, sqliteRepo.WithQueryTimeout(cfg.QueryTimeout))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", slog.String("path", cfg.SQLitePath))
		return db, db.Close, nil
	}
}

// limiterSet is the submission limiter chain plus what has to run or be
// released alongside it.
type limiterSet struct {
	limiter  ratelimit.Limiter
	janitors []func(ctx context.Context) error
	closers  []func() error
}

// buildLimiters enforces the hourly window in process. The daily window goes
// to Redis when configured so it survives restarts and is shared between
// replicas; otherwise it is kept in process as well.
func buildLimiters(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (*limiterSet, error) {
	set := &limiterSet{}

	hourly := ratelimit.NewFixedWindow(cfg.HourlyLimit, cfg.HourlyWindow, ratelimit.WithMaxKeys(cfg.MaxKeys))
	set.janitors = append(set.janitors, func(ctx context.Context) error {
		return hourly.StartJanitor(ctx, cfg.SweepInterval)
	})

	var daily ratelimit.Limiter
	switch {
	case cfg.DailyLimit <= 0:
		// Disabled.
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Submissions still go through; the limiter fails open.
			logger.Warn("redis unreachable at startup", slog.String("addr", cfg.RedisAddr), slog.String("error", err.Error()))
		}
		w, err := ratelimit.NewRedisWindow(rdb, cfg.DailyLimit, cfg.DailyWindow,
			ratelimit.WithPrefix(cfg.RedisPrefix),
			ratelimit.WithHashKey(cfg.KeySecret),
		)
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("daily limiter: %w", err)
		}
		set.closers = append(set.closers, rdb.Close)
		daily = w
		logger.Info("daily limit backed by redis", slog.String("addr", cfg.RedisAddr))
	default:
		w := ratelimit.NewFixedWindow(cfg.DailyLimit, cfg.DailyWindow, ratelimit.WithMaxKeys(cfg.MaxKeys))
		set.janitors = append(set.janitors, func(ctx context.Context) error {
			return w.StartJanitor(ctx, cfg.SweepInterval)
		})
		daily = w
	}

	set.limiter = ratelimit.Chain(hourly, daily)
	return set, nil
}
