// Package postgres opens instrumented pgx connection pools.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tune pool instrumentation.
type Options struct {
	// MaxConns overrides the pool size when > 0.
	MaxConns int32

	// SlowQuery logs queries at or above this duration. 0 disables.
	SlowQuery time.Duration

	// LogQueries logs every query, not only failed or slow ones.
	LogQueries bool

	// Observer receives per-query timings.
	Observer QueryObserver
}

// NewPool parses databaseURL, installs the otel and logging query tracers,
// and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.Tracer = newQueryTracer(otelpgx.NewTracer(), opts)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
