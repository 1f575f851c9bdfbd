package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	pgmcp "github.com/Antonhansel/my-pg-mcp"
	"github.com/Antonhansel/my-pg-mcp/internal/limits"
)

func runDoctor(t *testing.T, cfg pgmcp.ServerConfig) string {
	t.Helper()
	path := writeConfigFile(t, t.TempDir(), cfg)
	var buf bytes.Buffer
	if err := doctor(&buf, false, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buf.String()
}

func TestDoctorValidHTTPConfig(t *testing.T) {
	t.Parallel()
	output := runDoctor(t, validServerConfig())

	if strings.Contains(output, "✗") {
		t.Fatalf("expected all checks to pass, but found failures in output:\n%s", output)
	}
	for _, want := range []string{
		"Config file readable and valid JSON",
		"connection.dbname is set (testdb)",
		"server.transport is http on port 8080",
		"All regex patterns compile",
		"Safety Limits",
		"max rows          1,000 (MCP_MAX_ROWS)",
		"statement timeout 30s (MCP_TIMEOUT_MS)",
		"max query length  10,000 characters (MCP_MAX_QUERY_LENGTH)",
		"claude mcp add --transport http postgres http://localhost:8080/mcp",
		"Cursor",
		"Windsurf",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestDoctorStdioSnippets(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Server.Transport = "stdio"
	output := runDoctor(t, cfg)

	if !strings.Contains(output, "claude mcp add postgres -- mypgmcp serve --config") {
		t.Fatalf("expected stdio add command in output:\n%s", output)
	}
	if !strings.Contains(output, `"command": "mypgmcp"`) {
		t.Fatalf("expected stdio command snippet in output:\n%s", output)
	}
	if strings.Contains(output, "http://localhost") {
		t.Fatalf("expected no http URLs for stdio transport:\n%s", output)
	}
	if strings.Contains(output, "Windsurf") {
		t.Fatalf("expected remote-only agents to be skipped for stdio:\n%s", output)
	}
	if !strings.Contains(output, connStringEnv) {
		t.Fatalf("expected connection string hint in output:\n%s", output)
	}
}

func TestDoctorConfiguredLimits(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Limits = limits.Limits{MaxRows: 20000, TimeoutMs: 1500}
	output := runDoctor(t, cfg)

	if !strings.Contains(output, "max rows          20,000") || !strings.Contains(output, "statement timeout 1.5s") {
		t.Fatalf("expected configured limits in output:\n%s", output)
	}
}

func TestDoctorMissingConfig(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := doctor(&buf, false, "/nonexistent/path/config.json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "✗ Config file readable") {
		t.Fatalf("expected failed config check:\n%s", output)
	}
	if strings.Contains(output, "Agent Connection Snippets") {
		t.Fatalf("expected no agent snippets when config is missing:\n%s", output)
	}
}

func TestDoctorFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*pgmcp.ServerConfig)
		want   string
	}{
		{"missing dbname", func(c *pgmcp.ServerConfig) { c.Connection.DBName = "" }, "✗ connection.dbname is set"},
		{"bad transport", func(c *pgmcp.ServerConfig) { c.Server.Transport = "grpc" }, `✗ server.transport is stdio or http (got "grpc")`},
		{"no port", func(c *pgmcp.ServerConfig) { c.Server.Port = 0 }, "✗ server.transport is http on port 0"},
		{"health path", func(c *pgmcp.ServerConfig) { c.Server.HealthCheckEnabled = true }, "✗ health_check_path is set"},
		{"min conns", func(c *pgmcp.ServerConfig) { c.Pool.MinConns = 9 }, "✗ pool.min_conns is between 0 and max_conns"},
		{"duration", func(c *pgmcp.ServerConfig) { c.Pool.MaxConnLifetime = "forever" }, "✗ pool.max_conn_lifetime is a Go duration"},
		{"negative limit", func(c *pgmcp.ServerConfig) { c.Limits.MaxRows = -1 }, "✗ limits are not negative"},
		{"timezone", func(c *pgmcp.ServerConfig) { c.Timezone = "Mars/Olympus" }, "✗ timezone is valid"},
		{"error prompt regex", func(c *pgmcp.ServerConfig) {
			c.ErrorPrompts = []pgmcp.ErrorPromptRule{{Pattern: "[invalid(regex", Message: "x"}}
		}, "✗ error_prompts[0] regex compiles"},
		{"sanitization column regex", func(c *pgmcp.ServerConfig) {
			c.Sanitization = []pgmcp.SanitizationRule{{Pattern: `\d`, Column: "(ssn"}}
		}, "✗ sanitization[0] column regex compiles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validServerConfig()
			tt.mutate(&cfg)
			output := runDoctor(t, cfg)
			if !strings.Contains(output, tt.want) {
				t.Fatalf("expected %q in output:\n%s", tt.want, output)
			}
			if !strings.Contains(output, "Fix the issues above") {
				t.Fatalf("expected fix message in output:\n%s", output)
			}
		})
	}
}

func TestDoctorPortInSnippets(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Server.Port = 9999
	output := runDoctor(t, cfg)

	// add command + Claude Code + Cursor + Gemini CLI + Windsurf
	if count := strings.Count(output, "http://localhost:9999/mcp"); count != 5 {
		t.Fatalf("expected URL to appear 5 times, found %d:\n%s", count, output)
	}
}

func TestDoctorSnippetUsesAbsoluteConfigPath(t *testing.T) {
	t.Parallel()
	cfg := validServerConfig()
	cfg.Server.Transport = "stdio"
	dir := t.TempDir()
	path := writeConfigFile(t, dir, cfg)

	var buf bytes.Buffer
	printAgentSnippets(&buf, false, &cfg, path)
	abs, _ := filepath.Abs(path)
	if !strings.Contains(buf.String(), abs) {
		t.Fatalf("expected absolute config path %s in output:\n%s", abs, buf.String())
	}
}
