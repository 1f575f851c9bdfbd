// Package configure implements the interactive configuration wizard behind
// `mypgmcp configure`.
package configure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	pgmcp "github.com/Antonhansel/my-pg-mcp"
	"github.com/Antonhansel/my-pg-mcp/internal/limits"
)

// Run runs the interactive configuration wizard.
// Reads existing config (if any), prompts for each field,
// writes updated config to the given path.
func Run(configPath string) error {
	return run(configPath, os.Stdin, os.Stderr)
}

func run(configPath string, input io.Reader, output io.Writer) error {
	cfg, isNew := loadExisting(configPath)
	if isNew {
		applyDefaults(cfg)
	}

	p := &prompter{
		scanner: bufio.NewScanner(input),
		output:  output,
		isNew:   isNew,
	}

	fmt.Fprintf(output, "mypgmcp configuration wizard\n")
	fmt.Fprintf(output, "Config file: %s\n\n", configPath)

	fmt.Fprintf(output, "=== Connection ===\n")
	cfg.Connection.Host = p.promptString("connection.host", cfg.Connection.Host, "")
	cfg.Connection.Port = p.promptInt("connection.port", cfg.Connection.Port, 1, "must be > 0")
	cfg.Connection.DBName = p.promptString("connection.dbname", cfg.Connection.DBName, "required")
	cfg.Connection.SSLMode = p.promptEnum("connection.sslmode", cfg.Connection.SSLMode, sslModes)

	fmt.Fprintf(output, "\n=== Server ===\n")
	cfg.Server.Transport = p.promptEnum("server.transport", cfg.Server.Transport, transports)
	if cfg.Server.Transport == "http" {
		cfg.Server.Port = p.promptInt("server.port", cfg.Server.Port, 1, "must be > 0")
		cfg.Server.HealthCheckEnabled = p.promptBool("server.health_check_enabled", cfg.Server.HealthCheckEnabled)
		if cfg.Server.HealthCheckEnabled {
			cfg.Server.HealthCheckPath = p.promptString("server.health_check_path", cfg.Server.HealthCheckPath, "e.g. /healthz")
		}
		cfg.Server.MetricsEnabled = p.promptBool("server.metrics_enabled", cfg.Server.MetricsEnabled)
		if cfg.Server.MetricsEnabled {
			cfg.Server.MetricsPath = p.promptString("server.metrics_path", cfg.Server.MetricsPath, "e.g. /metrics")
		}
	}

	fmt.Fprintf(output, "\n=== Logging ===\n")
	cfg.Logging.Level = p.promptEnum("logging.level", cfg.Logging.Level, logLevels)
	cfg.Logging.Format = p.promptEnum("logging.format", cfg.Logging.Format, logFormats)
	cfg.Logging.Output = p.promptString("logging.output", cfg.Logging.Output, "stderr, stdout, or file path")

	fmt.Fprintf(output, "\n=== Pool ===\n")
	cfg.Pool.MaxConns = p.promptInt("pool.max_conns", cfg.Pool.MaxConns, 1, "must be > 0")
	cfg.Pool.MinConns = p.promptInt("pool.min_conns", cfg.Pool.MinConns, 0, "must be >= 0")
	cfg.Pool.MaxConnLifetime = p.promptDuration("pool.max_conn_lifetime", cfg.Pool.MaxConnLifetime)
	cfg.Pool.MaxConnIdleTime = p.promptDuration("pool.max_conn_idle_time", cfg.Pool.MaxConnIdleTime)
	cfg.Pool.HealthCheckPeriod = p.promptDuration("pool.health_check_period", cfg.Pool.HealthCheckPeriod)

	fmt.Fprintf(output, "\n=== Limits (overridden by %s, %s, %s) ===\n",
		limits.EnvName(limits.KeyMaxRows), limits.EnvName(limits.KeyTimeoutMs), limits.EnvName(limits.KeyMaxQueryLength))
	cfg.Limits.MaxRows = p.promptInt("limits.max_rows", cfg.Limits.MaxRows, 1, "rows, must be > 0")
	cfg.Limits.TimeoutMs = p.promptInt("limits.timeout_ms", cfg.Limits.TimeoutMs, 1, "milliseconds, must be > 0")
	cfg.Limits.MaxQueryLength = p.promptInt("limits.max_query_length", cfg.Limits.MaxQueryLength, 1, "characters, must be > 0")

	fmt.Fprintf(output, "\n=== Schema tools ===\n")
	cfg.Query.ListTablesTimeoutSeconds = p.promptInt("query.list_tables_timeout_seconds", cfg.Query.ListTablesTimeoutSeconds, 1, "seconds, must be > 0")
	cfg.Query.DescribeTableTimeoutSeconds = p.promptInt("query.describe_table_timeout_seconds", cfg.Query.DescribeTableTimeoutSeconds, 1, "seconds, must be > 0")

	fmt.Fprintf(output, "\n=== General ===\n")
	cfg.Timezone = p.promptTimezone(cfg.Timezone)

	fmt.Fprintf(output, "\n=== Error Prompts ===\n")
	cfg.ErrorPrompts = editList(p, "error prompt", cfg.ErrorPrompts,
		func(r pgmcp.ErrorPromptRule) string {
			return fmt.Sprintf("pattern=%q message=%q", r.Pattern, r.Message)
		},
		func() pgmcp.ErrorPromptRule {
			return pgmcp.ErrorPromptRule{
				Pattern: p.promptNewRegexField("pattern"),
				Message: p.promptNewField("message"),
			}
		})

	fmt.Fprintf(output, "\n=== Sanitization Rules ===\n")
	cfg.Sanitization = editList(p, "sanitization rule", cfg.Sanitization,
		func(r pgmcp.SanitizationRule) string {
			return fmt.Sprintf("pattern=%q replacement=%q column=%q description=%q", r.Pattern, r.Replacement, r.Column, r.Description)
		},
		func() pgmcp.SanitizationRule {
			return pgmcp.SanitizationRule{
				Pattern:     p.promptNewRegexField("pattern"),
				Replacement: p.promptNewField("replacement"),
				Column:      p.promptNewRegexField("column (empty = all columns)"),
				Description: p.promptNewField("description"),
			}
		})

	if err := writeConfig(configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(output, "\nConfiguration saved to %s\n", configPath)
	return nil
}

func loadExisting(configPath string) (*pgmcp.ServerConfig, bool) {
	cfg := &pgmcp.ServerConfig{}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, true
	}
	// Ignore unmarshal errors: start with whatever was parseable.
	_ = json.Unmarshal(data, cfg)
	return cfg, false
}

// applyDefaults sets the values a new configuration starts from.
func applyDefaults(cfg *pgmcp.ServerConfig) {
	cfg.Connection.Host = "localhost"
	cfg.Connection.Port = 5432
	cfg.Connection.SSLMode = "prefer"
	cfg.Server.Transport = "stdio"
	cfg.Server.Port = 8080
	cfg.Server.MetricsPath = "/metrics"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Pool.MaxConns = 5
	cfg.Pool.MaxConnLifetime = "1h"
	cfg.Pool.MaxConnIdleTime = "30m"
	cfg.Pool.HealthCheckPeriod = "1m"
	cfg.Limits = limits.Defaults()
	cfg.Query.ListTablesTimeoutSeconds = 10
	cfg.Query.DescribeTableTimeoutSeconds = 10
}

var (
	sslModes   = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	transports = []string{"stdio", "http"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
)

func writeConfig(configPath string, cfg *pgmcp.ServerConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", configPath, err)
	}
	return nil
}

// prompter handles reading user input and displaying prompts.
type prompter struct {
	scanner *bufio.Scanner
	output  io.Writer
	isNew   bool
}

func (p *prompter) readLine() string {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	return ""
}

func (p *prompter) valueLabel() string {
	if p.isNew {
		return "default"
	}
	return "current"
}

func (p *prompter) label(field, hint string) string {
	if hint == "" {
		return field
	}
	return fmt.Sprintf("%s [%s]", field, hint)
}

func (p *prompter) promptString(field, current, hint string) string {
	fmt.Fprintf(p.output, "%s (%s: %q): ", p.label(field, hint), p.valueLabel(), current)
	if input := p.readLine(); input != "" {
		return input
	}
	return current
}

// promptInt reads an integer >= min. Empty input keeps current.
func (p *prompter) promptInt(field string, current, min int, hint string) int {
	for {
		fmt.Fprintf(p.output, "%s (%s: %d): ", p.label(field, hint), p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if val < min {
			fmt.Fprintf(p.output, "  Value must be >= %d, try again.\n", min)
			continue
		}
		return val
	}
}

func (p *prompter) promptBool(field string, current bool) bool {
	for {
		fmt.Fprintf(p.output, "%s (%s: %v): ", field, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		switch strings.ToLower(input) {
		case "true", "t", "yes", "y", "1":
			return true
		case "false", "f", "no", "n", "0":
			return false
		default:
			fmt.Fprintf(p.output, "  Invalid value %q, use true/false/yes/no, try again.\n", input)
		}
	}
}

func (p *prompter) promptDuration(field, current string) string {
	for {
		fmt.Fprintf(p.output, "%s [Go duration: e.g. 1h, 30m, 1m30s] (%s: %q): ", field, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		if _, err := time.ParseDuration(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid Go duration %q, try again.\n", input)
			continue
		}
		return input
	}
}

func (p *prompter) promptTimezone(current string) string {
	for {
		fmt.Fprintf(p.output, "timezone [e.g. UTC, America/New_York, empty = server default] (%s: %q): ", p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		if _, err := time.LoadLocation(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid timezone %q, please enter a valid IANA timezone.\n", input)
			continue
		}
		return input
	}
}

func (p *prompter) promptEnum(field, current string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "%s (%s: %q, options: %s): ", field, p.valueLabel(), current, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return current
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, must be one of: %s\n", input, strings.Join(allowed, ", "))
	}
}

func (p *prompter) promptNewField(name string) string {
	fmt.Fprintf(p.output, "  %s: ", name)
	return p.readLine()
}

func (p *prompter) promptNewRegexField(name string) string {
	for {
		fmt.Fprintf(p.output, "  %s (regex): ", name)
		input := p.readLine()
		if input == "" {
			return ""
		}
		if _, err := regexp.Compile(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid regex %q: %v, try again.\n", input, err)
			continue
		}
		return input
	}
}

// editList runs the add/remove/continue loop for an array field.
func editList[T any](p *prompter, label string, items []T, describe func(T) string, add func() T) []T {
	for {
		if len(items) == 0 {
			fmt.Fprintf(p.output, "  (no entries)\n")
		}
		for i, item := range items {
			fmt.Fprintf(p.output, "  [%d] %s\n", i, describe(item))
		}
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		switch strings.ToLower(p.readLine()) {
		case "a":
			items = append(items, add())
		case "r":
			items = removeByIndex(p, label, items)
		case "c", "":
			return items
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

// removeByIndex removes the element whose index the user enters.
func removeByIndex[T any](p *prompter, label string, items []T) []T {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  No %s entries to remove.\n", label)
		return items
	}
	fmt.Fprintf(p.output, "  Index to remove: ")
	input := p.readLine()
	idx, err := strconv.Atoi(input)
	if err != nil || idx < 0 || idx >= len(items) {
		fmt.Fprintf(p.output, "  Invalid index.\n")
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
