package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dedupgate/internal/config"
	"dedupgate/internal/infrastructure/postgres"
	"dedupgate/internal/infrastructure/redis"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
)

// Factory lazily builds and caches infrastructure clients.
type Factory struct {
	cfg      *config.Config
	log      *slog.Logger
	pgPool   *pgxpool.Pool
	redisCli *goredis.Client
}

func NewFactory(cfg *config.Config, log *slog.Logger) *Factory {
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		f.log.Warn("failed to connect to postgres, retrying in 2s",
			"attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*goredis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr: f.cfg.Redis.Addr,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		_ = f.redisCli.Close()
	}
}
