package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-guesthouse-bookings/internal/bookings"
)

// pool defaults
const (
	maxConns          = 8
	minConns          = 1
	healthCheckPeriod = 30 * time.Second
	lockTimeout       = "5s"
	applicationName   = "guesthouse-bookings"
)

// Connect opens and pings a pool. An unreachable database is reported as
// bookings.ErrStorageUnavailable; there is no fallback store.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.HealthCheckPeriod = healthCheckPeriod

	rp := cfg.ConnConfig.RuntimeParams
	rp["lock_timeout"] = lockTimeout // lock waits surface as 55P03 -> StorageUnavailable
	if rp["application_name"] == "" {
		rp["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bookings.ErrStorageUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", bookings.ErrStorageUnavailable, err)
	}
	return pool, nil
}
