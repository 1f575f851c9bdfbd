// Package pgmcp exposes a PostgreSQL database to AI agents through the
// Model Context Protocol (MCP), behind a query safety gate.
//
// Every query passes through the gate before it reaches the database:
// queries over the length limit and queries matching a dangerous pattern
// (DELETE FROM, DROP, CREATE, ALTER, INSERT, UPDATE, TRUNCATE) are
// rejected, and SELECTs without a LIMIT get one appended. Allowed queries
// run in a read-only transaction with a transaction-local statement
// timeout, and the connection is always rolled back and released.
//
// Limits are read from MCP_MAX_ROWS, MCP_TIMEOUT_MS and
// MCP_MAX_QUERY_LENGTH on every request, falling back to Config.Limits
// and then to 1000 rows, 30s and 10000 characters.
//
// # Library Usage
//
//	p, err := pgmcp.New(ctx, connString, pgmcp.Config{
//		Pool: pgmcp.PoolConfig{MaxConns: 10},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	// Use directly
//	output := p.Query(ctx, pgmcp.QueryInput{SQL: "SELECT * FROM users"})
//	if output.Err != nil {
//		var rejection *pgmcp.SafetyRejection
//		if errors.As(output.Err, &rejection) {
//			// blocked by the gate
//		}
//	}
//
//	// Or register as MCP tools and resources
//	pgmcp.RegisterMCPTools(mcpServer, p)
package pgmcp
