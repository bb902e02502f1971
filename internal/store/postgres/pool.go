package postgres

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Pool defaults, applied to zero fields.
const (
	DefaultMaxConns          int32 = 20
	DefaultMinConns          int32 = 2
	DefaultMaxConnLifetime         = time.Hour
	DefaultMaxConnIdleTime         = 30 * time.Minute
	DefaultHealthCheckPeriod       = time.Minute
	DefaultConnectTimeout          = 10 * time.Second
)

// PoolConfig configures a pgx pool. The control pool and every tenant pool use it.
type PoolConfig struct {
	// ConnString is a URL or keyword/value connection string.
	ConnString string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration

	// Tracer is attached to every connection, used to echo SQL.
	Tracer pgx.QueryTracer
}

func (c *PoolConfig) Validate() error {
	if c.ConnString == "" {
		return errors.New("connection string is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns (%d) exceeds max conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// ApplyDefaults fills zero fields. MinConns is clamped to MaxConns.
func (c *PoolConfig) ApplyDefaults() {
	c.MaxConns = cmp.Or(c.MaxConns, DefaultMaxConns)
	c.MinConns = min(cmp.Or(c.MinConns, DefaultMinConns), c.MaxConns)
	c.MaxConnLifetime = cmp.Or(c.MaxConnLifetime, DefaultMaxConnLifetime)
	c.MaxConnIdleTime = cmp.Or(c.MaxConnIdleTime, DefaultMaxConnIdleTime)
	c.HealthCheckPeriod = cmp.Or(c.HealthCheckPeriod, DefaultHealthCheckPeriod)
	c.ConnectTimeout = cmp.Or(c.ConnectTimeout, DefaultConnectTimeout)
}

// pgxConfig converts c into a pgxpool config. c must already have defaults applied.
func (c *PoolConfig) pgxConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pc.MaxConns = c.MaxConns
	pc.MinConns = c.MinConns
	pc.MaxConnLifetime = c.MaxConnLifetime
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	pc.HealthCheckPeriod = c.HealthCheckPeriod
	pc.ConnConfig.ConnectTimeout = c.ConnectTimeout
	if c.Tracer != nil {
		pc.ConnConfig.Tracer = c.Tracer
	}
	return pc, nil
}

// NewPool opens a pool and pings it, so an unreachable database fails here rather
// than on first use.
func NewPool(ctx context.Context, cfg *PoolConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.New("pool config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pool config: %w", err)
	}

	pc, err := cfg.pgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// ConnectWithRetry creates the control-plane pool, retrying with exponential backoff
// until maxElapsed passes. Only used at process start while the database may still be
// coming up; tenant pools are never retried.
func ConnectWithRetry(ctx context.Context, cfg *PoolConfig, maxElapsed time.Duration) (*pgxpool.Pool, error) {
	return backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			if cfg.ConnString == "" {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return pool, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Dur("retry_in", next).Msg("Control database not ready")
		}),
	)
}
