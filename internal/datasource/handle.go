// Package datasource turns data source descriptors into live PostgreSQL connections.
package datasource

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the statement surface shared by pools and single connections.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Handle is a live connection resource bound to one descriptor.
type Handle interface {
	DB() Querier
	Ping(ctx context.Context) error
	// Pooled is false for single, non-pooled connections.
	Pooled() bool
	// DataSourceID is the descriptor the handle was opened for, empty for the control plane.
	DataSourceID() string
	Close(ctx context.Context) error
}

// Pool wraps a pgxpool.Pool.
type Pool struct {
	id     string
	shared bool
	pool   *pgxpool.Pool
}

// NewPool wraps an existing pool, used for the control-plane (primary) data source.
func NewPool(id string, pool *pgxpool.Pool) *Pool {
	return &Pool{id: id, shared: true, pool: pool}
}

func (p *Pool) DB() Querier                    { return p.pool }
func (p *Pool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p *Pool) Pooled() bool                   { return true }
func (p *Pool) DataSourceID() string           { return p.id }

// Stat exposes pool statistics.
func (p *Pool) Stat() *pgxpool.Stat { return p.pool.Stat() }

// Close closes the pool. Pools handed out by a Provisioner are closed by the
// provisioner, never by their users.
func (p *Pool) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

// Conn wraps a single pgx connection.
type Conn struct {
	id   string
	conn *pgx.Conn
}

func (c *Conn) DB() Querier                    { return c.conn }
func (c *Conn) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }
func (c *Conn) Pooled() bool                   { return false }
func (c *Conn) DataSourceID() string           { return c.id }

func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
