package gate

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/Antonhansel/my-pg-mcp/internal/limits"
)

// ApplyLimit injects or caps a LIMIT clause so that sql returns at most
// l.MaxRows rows. It never widens an existing limit.
//
//   - An existing LIMIT n above MaxRows has its first occurrence replaced.
//   - An existing LIMIT n within bounds is left alone.
//   - A SELECT without LIMIT gets one appended, before a trailing ';'.
//   - Anything else is returned unchanged.
func ApplyLimit(sql string, l limits.Limits) string {
	capped := "LIMIT " + strconv.Itoa(l.MaxRows)

	if loc := limitClause.FindStringSubmatchIndex(sql); loc != nil {
		n, err := strconv.Atoi(sql[loc[2]:loc[3]])
		// Atoi only fails here on overflow, which is above any cap.
		if err != nil || n > l.MaxRows {
			return sql[:loc[0]] + capped + sql[loc[1]:]
		}
		return sql
	}

	if !selectKeyword.MatchString(sql) {
		return sql
	}

	trimmed := strings.TrimSpace(sql)
	if strings.HasSuffix(trimmed, ";") {
		body := strings.TrimRightFunc(strings.TrimSuffix(trimmed, ";"), unicode.IsSpace)
		return body + " " + capped + ";"
	}
	return trimmed + " " + capped
}

// Prepare analyzes sql and, when the verdict asks for it, applies the row
// limit. The returned SQL is only meaningful for allowed verdicts.
func (a *Analyzer) Prepare(sql string, l limits.Limits) (string, Verdict) {
	v := a.Analyze(sql, l)
	if v.Rejected() || !v.NeedsLimit {
		return sql, v
	}
	return ApplyLimit(sql, l), v
}
