// Package db opens the Postgres pool and applies the embedded migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/syed-c/standzon-sub008/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "standzon-leads"
	pingTimeout     = 2 * time.Second
)

// NewPool connects and pings. The pool is sized for the HTTP server plus
// the delivery sweeper sharing one process.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	if poolConfig.ConnConfig.RuntimeParams["application_name"] == "" {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PoolAdapter makes a pool usable as a readiness check.
type PoolAdapter struct {
	pool *pgxpool.Pool
}

func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	return &PoolAdapter{pool: pool}
}

// Ping gives up after a short timeout so a stuck database fails the health
// check instead of hanging it.
func (a *PoolAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return a.pool.Ping(ctx)
}
