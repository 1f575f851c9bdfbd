package main

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	pgmcp "github.com/Antonhansel/my-pg-mcp"
	"github.com/Antonhansel/my-pg-mcp/internal/limits"
)

func doctor(w io.Writer, useColor bool, configPath string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "%s\n\n", versionString())

	config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'mypgmcp doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printEffectiveLimits(w, useColor, config)
	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config, configPath)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*pgmcp.ServerConfig, bool) {
	config, found, err := readServerConfig(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable and valid JSON (%s): %v", configPath, err))
		return nil, false
	}
	if !found {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable and valid JSON (%s): file not found, run 'mypgmcp configure'", configPath))
		return nil, false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Config file readable and valid JSON (%s)", configPath))

	allPassed := true
	check := func(pass bool, msg string) {
		printCheck(w, useColor, pass, msg)
		if !pass {
			allPassed = false
		}
	}

	check(config.Connection.DBName != "", fmt.Sprintf("connection.dbname is set (%s)", config.Connection.DBName))

	switch config.Server.Transport {
	case "stdio":
		check(true, "server.transport is stdio")
	case "http":
		check(config.Server.Port > 0, fmt.Sprintf("server.transport is http on port %d", config.Server.Port))
	default:
		check(false, fmt.Sprintf("server.transport is stdio or http (got %q)", config.Server.Transport))
	}

	if config.Server.Transport == "http" && config.Server.HealthCheckEnabled {
		check(config.Server.HealthCheckPath != "", fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
	}
	if config.Server.Transport == "http" && config.Server.MetricsEnabled {
		check(config.Server.MetricsPath != "", fmt.Sprintf("metrics_path is set (%s)", config.Server.MetricsPath))
	}

	check(config.Pool.MaxConns > 0, fmt.Sprintf("pool.max_conns is > 0 (%d)", config.Pool.MaxConns))
	check(config.Pool.MinConns >= 0 && config.Pool.MinConns <= config.Pool.MaxConns,
		fmt.Sprintf("pool.min_conns is between 0 and max_conns (%d)", config.Pool.MinConns))

	for name, d := range map[string]string{
		"pool.max_conn_lifetime":   config.Pool.MaxConnLifetime,
		"pool.max_conn_idle_time":  config.Pool.MaxConnIdleTime,
		"pool.health_check_period": config.Pool.HealthCheckPeriod,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			check(false, fmt.Sprintf("%s is a Go duration: %v", name, err))
		}
	}

	check(config.Limits.MaxRows >= 0 && config.Limits.TimeoutMs >= 0 && config.Limits.MaxQueryLength >= 0,
		"limits are not negative")

	if config.Timezone != "" {
		_, err := time.LoadLocation(config.Timezone)
		check(err == nil, fmt.Sprintf("timezone is valid (%s)", config.Timezone))
	}

	regexOK := true
	for i, rule := range config.ErrorPrompts {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			check(false, fmt.Sprintf("error_prompts[%d] regex compiles: %v", i, err))
			regexOK = false
		}
	}
	for i, rule := range config.Sanitization {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			check(false, fmt.Sprintf("sanitization[%d] regex compiles: %v", i, err))
			regexOK = false
		}
		if _, err := regexp.Compile(rule.Column); err != nil {
			check(false, fmt.Sprintf("sanitization[%d] column regex compiles: %v", i, err))
			regexOK = false
		}
	}
	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	return config, allPassed
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, color := "✓", "\033[32m"
	if !pass {
		mark, color = "✗", "\033[31m"
	}
	if useColor {
		fmt.Fprintf(w, "  %s%s\033[0m %s\n", color, mark, msg)
		return
	}
	fmt.Fprintf(w, "  %s %s\n", mark, msg)
}

func heading(w io.Writer, useColor bool, title string) {
	if useColor {
		fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		return
	}
	fmt.Fprintln(w, title)
}

// printEffectiveLimits prints the limits a query would run under right now,
// naming the environment variable that overrides each one.
func printEffectiveLimits(w io.Writer, useColor bool, config *pgmcp.ServerConfig) {
	effective := limits.NewResolver(config.Limits).Resolve()

	heading(w, useColor, "Safety Limits")
	fmt.Fprintf(w, "  max rows          %s (%s)\n", humanize.Comma(int64(effective.MaxRows)), limits.EnvName(limits.KeyMaxRows))
	fmt.Fprintf(w, "  statement timeout %s (%s)\n", effective.Timeout(), limits.EnvName(limits.KeyTimeoutMs))
	fmt.Fprintf(w, "  max query length  %s characters (%s)\n", humanize.Comma(int64(effective.MaxQueryLength)), limits.EnvName(limits.KeyMaxQueryLength))
}

type agentSnippet struct {
	name string
	http string
	// stdio is empty when the agent only documents remote servers.
	stdio string
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *pgmcp.ServerConfig, configPath string) {
	url := fmt.Sprintf("http://localhost:%d%s", config.Server.Port, mcpEndpoint)
	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		absConfig = configPath
	}
	args := fmt.Sprintf(`["serve", "--config", %q]`, absConfig)

	snippets := []agentSnippet{
		{
			name: "Claude Code (.mcp.json)",
			http: fmt.Sprintf(`{"mcpServers": {"postgres": {"type": "http", "url": %q}}}`, url),
			stdio: fmt.Sprintf(`{"mcpServers": {"postgres": {"command": "mypgmcp", "args": %s, "env": {%q: "postgres://..."}}}}`,
				args, connStringEnv),
		},
		{
			name:  "Cursor (.cursor/mcp.json)",
			http:  fmt.Sprintf(`{"mcpServers": {"postgres": {"url": %q}}}`, url),
			stdio: fmt.Sprintf(`{"mcpServers": {"postgres": {"command": "mypgmcp", "args": %s}}}`, args),
		},
		{
			name:  "Gemini CLI (~/.gemini/settings.json)",
			http:  fmt.Sprintf(`{"mcpServers": {"postgres": {"httpUrl": %q}}}`, url),
			stdio: fmt.Sprintf(`{"mcpServers": {"postgres": {"command": "mypgmcp", "args": %s}}}`, args),
		},
		{
			name: "Windsurf (~/.codeium/windsurf/mcp_config.json)",
			http: fmt.Sprintf(`{"mcpServers": {"postgres": {"serverUrl": %q}}}`, url),
		},
	}

	heading(w, useColor, "Agent Connection Snippets")
	fmt.Fprintln(w)

	if config.Server.Transport == "http" {
		fmt.Fprintf(w, "  claude mcp add --transport http postgres %s\n\n", url)
	} else {
		fmt.Fprintf(w, "  claude mcp add postgres -- mypgmcp serve --config %s\n\n", absConfig)
	}

	for _, s := range snippets {
		body := s.stdio
		if config.Server.Transport == "http" {
			body = s.http
		}
		if body == "" {
			continue
		}
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", s.name)
		} else {
			fmt.Fprintf(w, "  %s\n", s.name)
		}
		fmt.Fprintf(w, "    %s\n\n", body)
	}

	if config.Server.Transport == "stdio" {
		fmt.Fprintf(w, "  Set %s (or %s) in the agent's environment; stdio mode cannot prompt for a password.\n",
			connStringEnv, databaseURLEnv)
	}
	if config.Server.Transport == "http" && config.Server.MetricsEnabled {
		fmt.Fprintf(w, "  Prometheus metrics: http://localhost:%d%s\n", config.Server.Port, strings.TrimSpace(config.Server.MetricsPath))
	}
}
