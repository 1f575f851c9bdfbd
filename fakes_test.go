package pgmcp

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// fakePool records every acquire, release, begin and rollback so tests can
// assert that cleanup ran exactly once on each path.
type fakePool struct {
	mu sync.Mutex

	acquired      int
	released      int
	doubleRelease int
	begins        int
	rollbacks     int
	closed        bool

	txOpts       []pgx.TxOptions
	execs        []string
	queries      []string
	rollbackErrs []error // ctx.Err() observed by each Rollback

	beforeQuery func() // called by Tx.Query before it returns
	beforeBegin func() // called by Conn.BeginTx before it returns

	acquireErr error
	beginErr   error
	setErr     error
	queryErr   error

	columns []string
	data    [][]any
}

func (f *fakePool) Acquire(ctx context.Context) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	return &fakeConn{pool: f}, nil
}

func (f *fakePool) Ping(ctx context.Context) error {
	return nil
}

func (f *fakePool) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakePool) newRows() pgx.Rows {
	return &fakeRows{columns: f.columns, data: f.data, idx: -1}
}

// assertBalanced fails the test unless every acquired connection was
// released exactly once.
func (f *fakePool) assertBalanced(t *testing.T) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquired != f.released {
		t.Fatalf("unbalanced pool: acquired %d, released %d", f.acquired, f.released)
	}
	if f.doubleRelease != 0 {
		t.Fatalf("connection released more than once (%d extra releases)", f.doubleRelease)
	}
}

func (f *fakePool) counts() (acquired, released, begins, rollbacks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released, f.begins, f.rollbacks
}

type fakeConn struct {
	pool     *fakePool
	released bool
}

func (c *fakeConn) BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error) {
	f := c.pool
	if f.beforeBegin != nil {
		f.beforeBegin()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txOpts = append(f.txOpts, opts)
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.begins++
	return &fakeTx{pool: f}, nil
}

// Exec records statements sent outside a transaction. A bare ROLLBACK
// counts as the connection's rollback.
func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f := c.pool
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if sql == "ROLLBACK" {
		f.rollbacks++
		f.rollbackErrs = append(f.rollbackErrs, ctx.Err())
	}
	return pgconn.NewCommandTag("ROLLBACK"), nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f := c.pool
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.newRows(), nil
}

func (c *fakeConn) Release() {
	f := c.pool
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.released {
		f.doubleRelease++
		return
	}
	c.released = true
	f.released++
}

type fakeTx struct {
	pool *fakePool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f := tx.pool
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if f.setErr != nil {
		return pgconn.CommandTag{}, f.setErr
	}
	return pgconn.NewCommandTag("SET"), nil
}

func (tx *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f := tx.pool
	if f.beforeQuery != nil {
		f.beforeQuery()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.newRows(), nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	f := tx.pool
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	f.rollbackErrs = append(f.rollbackErrs, ctx.Err())
	return nil
}

// fakeRows serves a fixed result set.
type fakeRows struct {
	columns []string
	data    [][]any
	idx     int
	closed  bool
}

func (r *fakeRows) Close()                        { r.closed = true }
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) RawValues() [][]byte           { return nil }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	if r.closed || r.idx+1 >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.idx], nil
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *bool:
			*p = row[i].(bool)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func testConfig() Config {
	return Config{Pool: PoolConfig{MaxConns: 5}}
}

func newFakeMcp(t *testing.T, pool *fakePool, opts ...Option) *PostgresMcp {
	t.Helper()
	return NewWithPool(pool, testConfig(), zerolog.Nop(), opts...)
}
