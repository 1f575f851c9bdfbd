package gate

import (
	"strings"
	"sync"
	"testing"

	"github.com/Antonhansel/my-pg-mcp/internal/limits"
)

func testLimits() limits.Limits {
	return limits.Limits{MaxRows: 1000, TimeoutMs: 30000, MaxQueryLength: 10000}
}

func TestAnalyzeTooLong(t *testing.T) {
	t.Parallel()
	l := testLimits()
	l.MaxQueryLength = 20

	queries := []string{
		"SELECT id FROM users WHERE id = 1",
		"DROP TABLE users; DROP TABLE orders;",
		strings.Repeat("x", 21),
	}
	for _, q := range queries {
		v := Analyze(q, l)
		if !v.Rejected() {
			t.Fatalf("expected rejection for %q", q)
		}
		if v.Reason != ReasonTooLong {
			t.Fatalf("expected reason %q, got %q", ReasonTooLong, v.Reason)
		}
	}
}

func TestAnalyzeLengthBoundary(t *testing.T) {
	t.Parallel()
	l := testLimits()
	l.MaxQueryLength = 8

	if v := Analyze("SELECT 1", l); v.Rejected() {
		t.Fatalf("query of exactly MaxQueryLength should be allowed, got %q", v.Reason)
	}
	if v := Analyze("SELECT 12", l); !v.Rejected() {
		t.Fatal("query one over MaxQueryLength should be rejected")
	}
}

func TestAnalyzeLengthCountsCharacters(t *testing.T) {
	t.Parallel()
	l := testLimits()
	l.MaxQueryLength = 12

	// 12 characters, more than 12 bytes.
	if v := Analyze("SELECT 'éàü'", l); v.Rejected() {
		t.Fatalf("expected multi-byte query within character limit to pass, got %q", v.Reason)
	}
}

func TestAnalyzeBlocked(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sql     string
		pattern string
	}{
		{sql: "DELETE FROM users WHERE id = 1", pattern: `DELETE\s+FROM`},
		{sql: "DROP TABLE x", pattern: `DROP\s+`},
		{sql: "drop table x", pattern: `DROP\s+`},
		{sql: "CREATE TABLE t (id int)", pattern: `CREATE\s+`},
		{sql: "ALTER TABLE t ADD COLUMN c int", pattern: `ALTER\s+`},
		{sql: "INSERT INTO t VALUES (1)", pattern: `INSERT\s+`},
		{sql: "update t set c = 1", pattern: `UPDATE\s+`},
		{sql: "TRUNCATE t", pattern: `TRUNCATE\s+`},
		{sql: "SELECT 1; DROP TABLE users", pattern: `DROP\s+`},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			t.Parallel()
			v := Analyze(tt.sql, testLimits())
			if !v.Rejected() {
				t.Fatalf("expected %q to be rejected", tt.sql)
			}
			want := "Dangerous pattern detected: " + tt.pattern
			if v.Reason != want {
				t.Fatalf("expected reason %q, got %q", want, v.Reason)
			}
			if v.Rule == "" {
				t.Fatal("expected deciding rule name to be recorded")
			}
		})
	}
}

func TestAnalyzeSelectStarForcesLimit(t *testing.T) {
	t.Parallel()
	for _, q := range []string{"SELECT * FROM users", "select * from users;", "SELECT  *  FROM users   "} {
		v := Analyze(q, testLimits())
		if !v.Allowed || !v.NeedsLimit {
			t.Fatalf("expected Allowed(needsLimit=true) for %q, got %+v", q, v)
		}
		if v.Note != NoteForcedLimit {
			t.Fatalf("expected note %q, got %q", NoteForcedLimit, v.Note)
		}
		if v.Rule != "select_star" {
			t.Fatalf("expected rule select_star, got %q", v.Rule)
		}
	}
}

func TestAnalyzeSelectStarStopsEvaluation(t *testing.T) {
	t.Parallel()
	// A table named like a blocked keyword must not reach the block rules.
	v := Analyze("SELECT * FROM update_log", testLimits())
	if !v.Allowed || !v.NeedsLimit {
		t.Fatalf("expected first matching rule to win, got %+v", v)
	}
}

func TestAnalyzeSelectWithoutLimit(t *testing.T) {
	t.Parallel()
	v := Analyze("SELECT id, name FROM users WHERE active", testLimits())
	if !v.Allowed || !v.NeedsLimit {
		t.Fatalf("expected Allowed(needsLimit=true), got %+v", v)
	}
	if v.Note != "" || v.Rule != "" {
		t.Fatalf("expected no note or rule, got %+v", v)
	}
}

func TestAnalyzeSelectWithLimit(t *testing.T) {
	t.Parallel()
	for _, q := range []string{"SELECT * FROM users LIMIT 50", "select id from t limit 5000"} {
		v := Analyze(q, testLimits())
		if !v.Allowed || v.NeedsLimit {
			t.Fatalf("expected Allowed(needsLimit=false) for %q, got %+v", q, v)
		}
	}
}

func TestAnalyzeUnrecognizedShapeFailsOpen(t *testing.T) {
	t.Parallel()
	for _, q := range []string{"VALUES (1), (2)", "SHOW search_path", "EXPLAIN VALUES (1)"} {
		v := Analyze(q, testLimits())
		if !v.Allowed || v.NeedsLimit {
			t.Fatalf("expected Allowed(needsLimit=false) for %q, got %+v", q, v)
		}
	}
}

func TestAnalyzerCustomCatalog(t *testing.T) {
	t.Parallel()
	c, err := NewCatalog([]RuleSpec{
		{Name: "pg_sleep", Pattern: `pg_sleep`, Disposition: Block},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := NewAnalyzer(c)

	if v := a.Analyze("SELECT PG_SLEEP(10)", testLimits()); !v.Rejected() {
		t.Fatal("expected custom rule to reject case-insensitively")
	}
	// Default rules are not part of a custom catalog.
	if v := a.Analyze("DROP TABLE x", testLimits()); v.Rejected() {
		t.Fatalf("expected DROP to pass a catalog without a DROP rule, got %q", v.Reason)
	}
}

func TestAnalyzerConcurrent(t *testing.T) {
	a := NewAnalyzer(DefaultCatalog())
	queries := []string{
		"SELECT * FROM users",
		"DROP TABLE users",
		"SELECT id FROM t LIMIT 5",
		"UPDATE users SET name = 'x'",
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = a.Prepare(queries[(id+j)%len(queries)], testLimits())
			}
		}(i)
	}
	wg.Wait()
}
