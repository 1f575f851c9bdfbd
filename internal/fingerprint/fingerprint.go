// Package fingerprint produces log-safe summaries of SQL text using
// PostgreSQL's own parser. It is used for observability only and never
// decides whether a query may run.
package fingerprint

import (
	"unicode/utf8"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Summary is the log-safe view of one query.
type Summary struct {
	// Normalized has literal constants replaced by $n placeholders.
	// Falls back to the truncated raw text when the query does not parse.
	Normalized string
	// Fingerprint groups queries that differ only in constants.
	// Empty when the query does not parse.
	Fingerprint string
	Parsed      bool
}

// Summarize normalizes and fingerprints sql. maxLen bounds the length of
// Normalized in bytes; values <= 0 disable truncation.
func Summarize(sql string, maxLen int) Summary {
	normalized, err := pg_query.Normalize(sql)
	if err != nil {
		return Summary{Normalized: Truncate(sql, maxLen)}
	}
	fp, err := pg_query.Fingerprint(sql)
	if err != nil {
		return Summary{Normalized: Truncate(normalized, maxLen)}
	}
	return Summary{
		Normalized:  Truncate(normalized, maxLen),
		Fingerprint: fp,
		Parsed:      true,
	}
}

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, marking the cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}
