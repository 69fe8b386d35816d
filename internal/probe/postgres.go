package probe

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const livenessQuery = "SELECT 1"

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

// PostgresChecker runs a no-op query against a pgx pool.
type PostgresChecker struct {
	pool execer
}

// NewPostgresChecker wraps an existing pool (or pgxmock pool in tests).
func NewPostgresChecker(pool execer) (*PostgresChecker, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresChecker{pool: pool}, nil
}

// CheckLiveness executes SELECT 1.
func (c *PostgresChecker) CheckLiveness(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, livenessQuery); err != nil {
		return fmt.Errorf("postgres liveness query: %w", err)
	}
	return nil
}

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN      string
	MaxConns int32
}

// NewPool parses the DSN and creates a pool. pgxpool connects lazily, so an
// unreachable server does not fail here; the first probe reports it.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	return pool, nil
}
