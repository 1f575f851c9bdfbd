package pgmcp_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"

	pgmcp "github.com/Antonhansel/my-pg-mcp"
	"github.com/Antonhansel/my-pg-mcp/internal/limits"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

// acquireTestDB locks a database from the local pgflock locker. Tests are
// skipped when no locker is running.
func acquireTestDB(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Skipf("pgflock locker unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() pgmcp.Config {
	return pgmcp.Config{
		Pool: pgmcp.PoolConfig{MaxConns: 5},
	}
}

// newTestInstance creates a PostgresMcp against a fresh database after
// running setup statements over a plain read-write connection.
func newTestInstance(t *testing.T, l limits.Limits, setup ...string) *pgmcp.PostgresMcp {
	t.Helper()
	connStr := acquireTestDB(t)
	ctx := context.Background()

	if len(setup) > 0 {
		conn, err := pgx.Connect(ctx, connStr)
		if err != nil {
			t.Fatalf("failed to connect for setup: %v", err)
		}
		for _, sql := range setup {
			if _, err := conn.Exec(ctx, sql); err != nil {
				conn.Close(ctx)
				t.Fatalf("setup %q failed: %v", sql, err)
			}
		}
		conn.Close(ctx)
	}

	p, err := pgmcp.New(ctx, connStr, defaultConfig(), testLogger(),
		pgmcp.WithLimitsResolver(limits.NewResolver(l)))
	if err != nil {
		t.Fatalf("Failed to create PostgresMcp: %v", err)
	}
	t.Cleanup(func() { p.Close(ctx) })
	return p
}
