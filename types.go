package pgmcp

// QueryInput is the input for the query-database tool.
type QueryInput struct {
	SQL string `json:"sql"`
}

// QueryOutput is the result of one gated query. On failure Error holds the
// rendered message and Err the typed cause (*ValidationError,
// *SafetyRejection or *ExecutionFailure).
type QueryOutput struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`

	// RowCountHitLimit is true when the number of returned rows equals
	// MaxRows. It is a heuristic: a result of exactly MaxRows rows is
	// reported as limited even if no cap was applied.
	RowCountHitLimit bool `json:"row_count_hit_limit"`
	RowLimit         int  `json:"row_limit"`

	// SQL is the text that was sent to the database.
	SQL       string `json:"sql"`
	Rewritten bool   `json:"rewritten"`

	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// ListTablesInput is the input for the list-tables tool.
type ListTablesInput struct{}

// TableEntry is a single table in the ListTables output.
type TableEntry struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"` // "table" or "view", from information_schema.tables
}

// ListTablesOutput is the output of the list-tables tool.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
}

// DescribeTableInput is the input for the describe-table tool.
type DescribeTableInput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name     string `json:"column_name"`
	Type     string `json:"data_type"`
	Nullable bool   `json:"is_nullable"`
	Default  string `json:"column_default,omitempty"`
}

// DescribeTableOutput is the output of the describe-table tool.
type DescribeTableOutput struct {
	Schema  string       `json:"schema"`
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}
