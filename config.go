package pgmcp

import "github.com/Antonhansel/my-pg-mcp/internal/limits"

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool         PoolConfig         `json:"pool" mapstructure:"pool"`
	Limits       limits.Limits      `json:"limits" mapstructure:"limits"`
	Query        QueryConfig        `json:"query" mapstructure:"query"`
	ErrorPrompts []ErrorPromptRule  `json:"error_prompts" mapstructure:"error_prompts"`
	Sanitization []SanitizationRule `json:"sanitization" mapstructure:"sanitization"`
	Timezone     string             `json:"timezone" mapstructure:"timezone"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config     `mapstructure:",squash"`
	Connection ConnectionConfig `json:"connection" mapstructure:"connection"`
	Server     ServerSettings   `json:"server" mapstructure:"server"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// ConnectionConfig holds database connection parameters used by CLI mode
// when no connection string is given in the environment.
type ConnectionConfig struct {
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
	DBName  string `json:"dbname" mapstructure:"dbname"`
	SSLMode string `json:"sslmode" mapstructure:"sslmode"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConns          int    `json:"max_conns" mapstructure:"max_conns"`
	MinConns          int    `json:"min_conns" mapstructure:"min_conns"`
	MaxConnLifetime   string `json:"max_conn_lifetime" mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `json:"max_conn_idle_time" mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `json:"health_check_period" mapstructure:"health_check_period"`
}

// ServerSettings holds transport settings for CLI mode.
type ServerSettings struct {
	Transport          string `json:"transport" mapstructure:"transport"` // stdio, http
	Port               int    `json:"port" mapstructure:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled" mapstructure:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path" mapstructure:"health_check_path"`
	MetricsEnabled     bool   `json:"metrics_enabled" mapstructure:"metrics_enabled"`
	MetricsPath        string `json:"metrics_path" mapstructure:"metrics_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // json, text
	Output string `json:"output" mapstructure:"output"` // stderr, stdout, or file path
}

// QueryConfig holds timeouts for the schema tools. Gated queries use the
// statement timeout from Limits instead.
type QueryConfig struct {
	ListTablesTimeoutSeconds    int `json:"list_tables_timeout_seconds" mapstructure:"list_tables_timeout_seconds"`
	DescribeTableTimeoutSeconds int `json:"describe_table_timeout_seconds" mapstructure:"describe_table_timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
type ErrorPromptRule struct {
	Pattern string `json:"pattern" mapstructure:"pattern"`
	Message string `json:"message" mapstructure:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule.
// Column optionally restricts the rule to matching column names.
type SanitizationRule struct {
	Pattern     string `json:"pattern" mapstructure:"pattern"`
	Replacement string `json:"replacement" mapstructure:"replacement"`
	Column      string `json:"column" mapstructure:"column"`
	Description string `json:"description" mapstructure:"description"`
}
