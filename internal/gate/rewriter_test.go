package gate

import "testing"

func TestApplyLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{name: "append to select star", sql: "SELECT * FROM users", want: "SELECT * FROM users LIMIT 1000"},
		{name: "existing limit within bounds", sql: "SELECT * FROM users LIMIT 50", want: "SELECT * FROM users LIMIT 50"},
		{name: "existing limit equal to cap", sql: "SELECT * FROM users LIMIT 1000", want: "SELECT * FROM users LIMIT 1000"},
		{name: "existing limit over cap", sql: "SELECT * FROM users LIMIT 5000", want: "SELECT * FROM users LIMIT 1000"},
		{name: "lowercase limit over cap", sql: "select * from users limit 5000 offset 10", want: "select * from users LIMIT 1000 offset 10"},
		{name: "overflowing limit", sql: "SELECT 1 LIMIT 99999999999999999999999", want: "SELECT 1 LIMIT 1000"},
		{name: "only first limit replaced", sql: "SELECT * FROM (SELECT * FROM t LIMIT 5000) s LIMIT 7000", want: "SELECT * FROM (SELECT * FROM t LIMIT 1000) s LIMIT 7000"},
		{name: "terminator preserved", sql: "SELECT id FROM t;", want: "SELECT id FROM t LIMIT 1000;"},
		{name: "space before terminator", sql: "SELECT id FROM t ;  ", want: "SELECT id FROM t LIMIT 1000;"},
		{name: "surrounding whitespace trimmed", sql: "\n  SELECT id FROM t\n", want: "SELECT id FROM t LIMIT 1000"},
		{name: "not a select", sql: "VALUES (1)", want: "VALUES (1)"},
		{name: "show untouched", sql: "SHOW timezone;", want: "SHOW timezone;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ApplyLimit(tt.sql, testLimits())
			if got != tt.want {
				t.Fatalf("ApplyLimit(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}

func TestApplyLimitIdempotent(t *testing.T) {
	t.Parallel()
	for _, q := range []string{
		"SELECT * FROM users LIMIT 50",
		"SELECT * FROM users",
		"SELECT id FROM t;",
		"SELECT * FROM users LIMIT 5000",
	} {
		once := ApplyLimit(q, testLimits())
		twice := ApplyLimit(once, testLimits())
		if once != twice {
			t.Fatalf("expected idempotence for %q: %q then %q", q, once, twice)
		}
	}
}

func TestApplyLimitNeverWidens(t *testing.T) {
	t.Parallel()
	l := testLimits()
	l.MaxRows = 10

	got := ApplyLimit("SELECT id FROM t LIMIT 3", l)
	if got != "SELECT id FROM t LIMIT 3" {
		t.Fatalf("expected tighter limit kept, got %q", got)
	}
	got = ApplyLimit("SELECT id FROM t LIMIT 30", l)
	if got != "SELECT id FROM t LIMIT 10" {
		t.Fatalf("expected limit narrowed to 10, got %q", got)
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer(DefaultCatalog())

	sql, v := a.Prepare("SELECT * FROM users", testLimits())
	if !v.Allowed || sql != "SELECT * FROM users LIMIT 1000" {
		t.Fatalf("expected forced limit, got %q %+v", sql, v)
	}

	sql, v = a.Prepare("DROP TABLE users", testLimits())
	if !v.Rejected() || sql != "DROP TABLE users" {
		t.Fatalf("expected rejection with unchanged SQL, got %q %+v", sql, v)
	}

	sql, v = a.Prepare("SELECT id FROM t LIMIT 5", testLimits())
	if !v.Allowed || v.NeedsLimit || sql != "SELECT id FROM t LIMIT 5" {
		t.Fatalf("expected passthrough, got %q %+v", sql, v)
	}
}
