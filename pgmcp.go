package pgmcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Antonhansel/my-pg-mcp/internal/errprompt"
	"github.com/Antonhansel/my-pg-mcp/internal/gate"
	"github.com/Antonhansel/my-pg-mcp/internal/limits"
	"github.com/Antonhansel/my-pg-mcp/internal/metrics"
	"github.com/Antonhansel/my-pg-mcp/internal/sanitize"
)

const defaultSchemaToolTimeoutSeconds = 10

// PostgresMcp is the core engine behind the query-database, list-tables and
// describe-table tools. All exported methods are safe for concurrent use.
type PostgresMcp struct {
	config     Config
	pool       Pool
	semaphore  chan struct{}
	analyzer   *gate.Analyzer
	limits     *limits.Resolver
	sanitizer  *sanitize.Sanitizer
	errPrompts *errprompt.Matcher
	metrics    *metrics.Recorder
	logger     zerolog.Logger
}

// Option is a functional option for New() and NewWithPool().
type Option func(*options)

type options struct {
	catalog  gate.Catalog
	resolver *limits.Resolver
	recorder *metrics.Recorder
}

// WithCatalog replaces the default pattern catalog.
func WithCatalog(c gate.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithLimitsResolver replaces the environment-backed limits resolver
// built from Config.Limits.
func WithLimitsResolver(r *limits.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithMetrics records gate and gateway metrics on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// New creates a PostgresMcp backed by a pgxpool built from connString.
// Panics on invalid config. Returns error only for runtime failures (e.g., pool creation).
func New(ctx context.Context, connString string, config Config, logger zerolog.Logger, opts ...Option) (*PostgresMcp, error) {
	if connString == "" {
		panic("pgmcp: connString must be non-empty")
	}
	config = validateConfig(config)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.Pool.MaxConns)
	poolConfig.MinConns = int32(config.Pool.MinConns)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	if config.Pool.MaxConnLifetime != "" {
		poolConfig.MaxConnLifetime = mustDuration("pool.max_conn_lifetime", config.Pool.MaxConnLifetime)
	}
	if config.Pool.MaxConnIdleTime != "" {
		poolConfig.MaxConnIdleTime = mustDuration("pool.max_conn_idle_time", config.Pool.MaxConnIdleTime)
	}
	if config.Pool.HealthCheckPeriod != "" {
		poolConfig.HealthCheckPeriod = mustDuration("pool.health_check_period", config.Pool.HealthCheckPeriod)
	}

	if config.Timezone != "" {
		escaped := strings.ReplaceAll(config.Timezone, "'", "''")
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if _, err := conn.Exec(ctx, fmt.Sprintf("SET timezone = '%s'", escaped)); err != nil {
				return fmt.Errorf("failed to SET timezone: %w", err)
			}
			return nil
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return NewWithPool(NewPgxPool(pool), config, logger, opts...), nil
}

// NewWithPool creates a PostgresMcp over an existing Pool. The pool is
// owned by the returned instance and closed by Close.
// Panics on invalid config.
func NewWithPool(pool Pool, config Config, logger zerolog.Logger, opts ...Option) *PostgresMcp {
	if pool == nil {
		panic("pgmcp: pool must be non-nil")
	}
	config = validateConfig(config)

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	analyzer := gate.NewAnalyzer(gate.DefaultCatalog())
	if o.catalog != nil {
		analyzer = gate.NewAnalyzer(o.catalog)
	}
	resolver := o.resolver
	if resolver == nil {
		resolver = limits.NewResolver(config.Limits)
	}

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic(fmt.Sprintf("pgmcp: %v", err))
	}
	promptRules := append(append([]errprompt.Rule{}, errprompt.DefaultRules...), mapErrorPromptRules(config.ErrorPrompts)...)
	matcher, err := errprompt.NewMatcher(promptRules)
	if err != nil {
		panic(fmt.Sprintf("pgmcp: %v", err))
	}

	return &PostgresMcp{
		config:     config,
		pool:       pool,
		semaphore:  make(chan struct{}, config.Pool.MaxConns),
		analyzer:   analyzer,
		limits:     resolver,
		sanitizer:  san,
		errPrompts: matcher,
		metrics:    o.recorder,
		logger:     logger,
	}
}

// validateConfig panics on invalid values and fills defaults for zero values.
func validateConfig(config Config) Config {
	if config.Pool.MaxConns <= 0 {
		panic("pgmcp: pool.max_conns must be > 0")
	}
	if config.Pool.MinConns < 0 || config.Pool.MinConns > config.Pool.MaxConns {
		panic("pgmcp: pool.min_conns must be between 0 and pool.max_conns")
	}
	if config.Limits.MaxRows < 0 {
		panic("pgmcp: limits.max_rows must be >= 0")
	}
	if config.Limits.TimeoutMs < 0 {
		panic("pgmcp: limits.timeout_ms must be >= 0")
	}
	if config.Limits.MaxQueryLength < 0 {
		panic("pgmcp: limits.max_query_length must be >= 0")
	}
	if config.Query.ListTablesTimeoutSeconds < 0 {
		panic("pgmcp: query.list_tables_timeout_seconds must be >= 0")
	}
	if config.Query.DescribeTableTimeoutSeconds < 0 {
		panic("pgmcp: query.describe_table_timeout_seconds must be >= 0")
	}
	if config.Query.ListTablesTimeoutSeconds == 0 {
		config.Query.ListTablesTimeoutSeconds = defaultSchemaToolTimeoutSeconds
	}
	if config.Query.DescribeTableTimeoutSeconds == 0 {
		config.Query.DescribeTableTimeoutSeconds = defaultSchemaToolTimeoutSeconds
	}
	return config
}

func mustDuration(field, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("pgmcp: invalid %s %q: %v", field, value, err))
	}
	return d
}

// Close closes the connection pool. Accepts context for API forward-compatibility,
// but does not currently use it.
func (p *PostgresMcp) Close(ctx context.Context) {
	p.pool.Close()
}

// Ping checks that the database is reachable.
func (p *PostgresMcp) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Limits returns the limits the next request would run under.
func (p *PostgresMcp) Limits() limits.Limits {
	return p.limits.Resolve()
}

// mapSanitizationRules converts pgmcp SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
			Column:      r.Column,
		}
	}
	return result
}

// mapErrorPromptRules converts pgmcp ErrorPromptRules to internal errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}
