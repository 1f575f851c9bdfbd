package limits

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fixed fallback values used when no override is configured.
const (
	DefaultMaxRows        = 1000
	DefaultTimeoutMs      = 30000
	DefaultMaxQueryLength = 10000
)

// EnvPrefix is prepended to every override key when reading the environment.
const EnvPrefix = "MCP"

// Override keys. With EnvPrefix they resolve to MCP_MAX_ROWS,
// MCP_TIMEOUT_MS and MCP_MAX_QUERY_LENGTH.
const (
	KeyMaxRows        = "max_rows"
	KeyTimeoutMs      = "timeout_ms"
	KeyMaxQueryLength = "max_query_length"
)

// Limits are the numeric safety limits applied to a single request.
type Limits struct {
	MaxRows        int `json:"max_rows" mapstructure:"max_rows"`
	TimeoutMs      int `json:"timeout_ms" mapstructure:"timeout_ms"`
	MaxQueryLength int `json:"max_query_length" mapstructure:"max_query_length"`
}

// Defaults returns the fixed fallback limits.
func Defaults() Limits {
	return Limits{
		MaxRows:        DefaultMaxRows,
		TimeoutMs:      DefaultTimeoutMs,
		MaxQueryLength: DefaultMaxQueryLength,
	}
}

// Timeout returns TimeoutMs as a time.Duration.
func (l Limits) Timeout() time.Duration {
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// Resolver resolves Limits from environment overrides on every call.
// Nothing is cached: changing the environment between requests changes
// the limits of the next request without a restart.
type Resolver struct {
	defaults Limits
	env      *viper.Viper
}

// NewResolver creates a Resolver. Zero or negative fields in defaults are
// replaced by the fixed fallback values.
func NewResolver(defaults Limits) *Resolver {
	fixed := Defaults()
	if defaults.MaxRows <= 0 {
		defaults.MaxRows = fixed.MaxRows
	}
	if defaults.TimeoutMs <= 0 {
		defaults.TimeoutMs = fixed.TimeoutMs
	}
	if defaults.MaxQueryLength <= 0 {
		defaults.MaxQueryLength = fixed.MaxQueryLength
	}

	// viper reads the process environment at lookup time when
	// AutomaticEnv is on, so each Resolve sees the current values.
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return &Resolver{defaults: defaults, env: v}
}

// Resolve returns the limits for one request. Overrides that are absent,
// not integers, or not positive silently fall back to the defaults.
func (r *Resolver) Resolve() Limits {
	return Limits{
		MaxRows:        r.lookup(KeyMaxRows, r.defaults.MaxRows),
		TimeoutMs:      r.lookup(KeyTimeoutMs, r.defaults.TimeoutMs),
		MaxQueryLength: r.lookup(KeyMaxQueryLength, r.defaults.MaxQueryLength),
	}
}

// Defaults returns the defaults this resolver falls back to.
func (r *Resolver) Defaults() Limits {
	return r.defaults
}

// EnvName returns the environment variable name for an override key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func (r *Resolver) lookup(key string, fallback int) int {
	raw := strings.TrimSpace(r.env.GetString(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
