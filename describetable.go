package pgmcp

import (
	"context"
	"fmt"
	"time"
)

const describeColumnsSQL = `
SELECT
    column_name,
    data_type,
    is_nullable = 'YES' AS nullable,
    COALESCE(column_default, '') AS column_default
FROM information_schema.columns
WHERE table_schema = $1
  AND table_name = $2
ORDER BY ordinal_position;
`

const defaultSchema = "public"

// DescribeTable returns the columns of a table. Schema defaults to public.
// Table and schema are bound as parameters, never interpolated.
func (p *PostgresMcp) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	if input.Table == "" {
		return nil, &ValidationError{Field: "table", Reason: "table name is required"}
	}
	schema := input.Schema
	if schema == "" {
		schema = defaultSchema
	}

	startTime := time.Now()
	output := &DescribeTableOutput{Schema: schema, Name: input.Table, Columns: []ColumnInfo{}}

	timeout := time.Duration(p.config.Query.DescribeTableTimeoutSeconds) * time.Second
	err := p.withConn(ctx, "DescribeTable", timeout, func(ctx context.Context, conn Conn) error {
		rows, err := conn.Query(ctx, describeColumnsSQL, schema, input.Table)
		if err != nil {
			return fmt.Errorf("DescribeTable query failed: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var col ColumnInfo
			if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default); err != nil {
				return fmt.Errorf("DescribeTable scan failed: %w", err)
			}
			output.Columns = append(output.Columns, col)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("DescribeTable rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(output.Columns) == 0 {
		return nil, fmt.Errorf("table %q not found in schema %q", input.Table, schema)
	}

	log := p.loggerFor(ctx)
	log.Info().
		Str("schema", schema).
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Int("column_count", len(output.Columns)).
		Msg("DescribeTable executed")

	return output, nil
}
