package pgmcp

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool hands out connections. *pgxpool.Pool satisfies it through
// NewPgxPool; tests substitute a fake.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
}

// Conn is a connection borrowed from a Pool. Release must be called
// exactly once.
type Conn interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Release()
}

// Tx is the subset of pgx.Tx the gateway uses. Transactions are never
// committed.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Rollback(ctx context.Context) error
}

// NewPgxPool adapts a pgxpool.Pool to Pool.
func NewPgxPool(pool *pgxpool.Pool) Pool {
	return pgxPool{pool: pool}
}

type pgxPool struct {
	pool *pgxpool.Pool
}

func (p pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pgxConn{conn: conn}, nil
}

func (p pgxPool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p pgxPool) Close() {
	p.pool.Close()
}

type pgxConn struct {
	conn *pgxpool.Conn
}

func (c pgxConn) BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error) {
	tx, err := c.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c pgxConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

func (c pgxConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

func (c pgxConn) Release() {
	c.conn.Release()
}
