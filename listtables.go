package pgmcp

import (
	"context"
	"fmt"
	"time"
)

const listTablesSQL = `
SELECT
    table_schema AS schema,
    table_name AS name,
    CASE table_type WHEN 'VIEW' THEN 'view' ELSE 'table' END AS type
FROM information_schema.tables
WHERE table_schema = 'public'
ORDER BY table_name;
`

// ListTables returns the tables and views of the public schema.
// Does NOT go through the gate: the SQL is fixed.
func (p *PostgresMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()
	tables := []TableEntry{}

	timeout := time.Duration(p.config.Query.ListTablesTimeoutSeconds) * time.Second
	err := p.withConn(ctx, "ListTables", timeout, func(ctx context.Context, conn Conn) error {
		rows, err := conn.Query(ctx, listTablesSQL)
		if err != nil {
			return fmt.Errorf("ListTables query failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var entry TableEntry
			if err := rows.Scan(&entry.Schema, &entry.Name, &entry.Type); err != nil {
				return fmt.Errorf("ListTables scan failed: %w", err)
			}
			tables = append(tables, entry)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("ListTables rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := p.loggerFor(ctx)
	log.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables}, nil
}

// withConn acquires a concurrency slot and a pooled connection, runs fn
// under timeout, and releases both.
func (p *PostgresMcp) withConn(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context, conn Conn) error) error {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%s: failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", op, cap(p.semaphore), ctx.Err())
	}
	defer func() { <-p.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	return fn(queryCtx, conn)
}
