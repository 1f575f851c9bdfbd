package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/term"

	pgmcp "github.com/Antonhansel/my-pg-mcp"
	"github.com/Antonhansel/my-pg-mcp/internal/metrics"
)

const (
	connStringEnv  = "MYPGMCP_PG_CONNSTRING"
	databaseURLEnv = "DATABASE_URL"
	mcpEndpoint    = "/mcp"
	shutdownGrace  = 10 * time.Second
)

func runServe(ctx context.Context, configPath string) error {
	serverConfig, found, err := readServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	transport := serverConfig.Server.Transport
	if transport != "stdio" && transport != "http" {
		panic(fmt.Sprintf("mypgmcp: server.transport must be stdio or http, got %q", transport))
	}
	if transport == "http" && serverConfig.Server.Port <= 0 {
		panic("mypgmcp: server.port must be > 0")
	}

	connString := connStringFromEnv(os.LookupEnv)
	if connString == "" && transport == "stdio" {
		// stdin belongs to the MCP client in stdio mode.
		return fmt.Errorf("%s or %s must be set when server.transport is stdio", connStringEnv, databaseURLEnv)
	}
	if connString == "" {
		username := promptInput("Username: ")
		password := promptPassword("Password: ")
		connString = buildConnString(serverConfig.Connection, username, password)
	}

	logger := setupLogger(serverConfig.Logging, transport)
	if !found {
		logger.Info().Str("path", configPath).Msg("config file not found, using defaults")
	}

	recorder := metrics.New()
	pgMcp, err := pgmcp.New(ctx, connString, serverConfig.Config, logger, pgmcp.WithMetrics(recorder))
	if err != nil {
		return fmt.Errorf("failed to create PostgresMcp: %w", err)
	}
	defer pgMcp.Close(context.WithoutCancel(ctx))

	logger.Info().Msg("testing database connection")
	if err := pgMcp.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	effective := pgMcp.Limits()
	logger.Info().
		Int("max_rows", effective.MaxRows).
		Int("timeout_ms", effective.TimeoutMs).
		Int("max_query_length", effective.MaxQueryLength).
		Msg("safety limits")

	mcpServer := newMCPServer(pgMcp, logger)

	if transport == "stdio" {
		logger.Info().Msg("starting mypgmcp server on stdio")
		return server.ServeStdio(mcpServer)
	}
	return serveHTTP(ctx, serverConfig.Server, mcpServer, recorder, logger)
}

func newMCPServer(pgMcp *pgmcp.PostgresMcp, logger zerolog.Logger) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("mypgmcp", version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithHooks(hooks),
		server.WithRecovery(),
	)
	pgmcp.RegisterMCPTools(mcpServer, pgMcp)
	return mcpServer
}

// newHTTPMux builds the mux for the http transport. The MCP endpoint is
// registered separately because Start() does not register it when a custom
// *http.Server is supplied.
func newHTTPMux(settings pgmcp.ServerSettings, recorder *metrics.Recorder) *http.ServeMux {
	mux := http.NewServeMux()

	// Process liveness only, not DB connectivity.
	if settings.HealthCheckEnabled {
		if settings.HealthCheckPath == "" {
			panic("mypgmcp: health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(settings.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	if settings.MetricsEnabled {
		if settings.MetricsPath == "" {
			panic("mypgmcp: metrics_path must be set when metrics_enabled is true")
		}
		mux.Handle(settings.MetricsPath, recorder.Handler())
	}
	return mux
}

func serveHTTP(ctx context.Context, settings pgmcp.ServerSettings, mcpServer *server.MCPServer, recorder *metrics.Recorder, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%d", settings.Port)
	mux := newHTTPMux(settings, recorder)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(mcpEndpoint),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)
	mux.Handle(mcpEndpoint, streamableServer)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", settings.Port).Msg("starting mypgmcp server on http")
		errCh <- streamableServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down mypgmcp server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := streamableServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		return nil
	}
}

// loadServerConfig reads the JSON config file at path. Keys missing from
// the file take the CLI defaults, and a missing file means all defaults.
func loadServerConfig(path string) (*pgmcp.ServerConfig, error) {
	config, _, err := readServerConfig(path)
	return config, err
}

// readServerConfig is loadServerConfig that also reports whether the file
// existed.
func readServerConfig(path string) (*pgmcp.ServerConfig, bool, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setServerDefaults(v)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		found = false
	}

	var config pgmcp.ServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, false, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, found, nil
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("pool.max_conns", 5)
	v.SetDefault("query.list_tables_timeout_seconds", 10)
	v.SetDefault("query.describe_table_timeout_seconds", 10)
}

// connStringFromEnv returns the first non-empty connection string from
// MYPGMCP_PG_CONNSTRING or DATABASE_URL.
func connStringFromEnv(lookup func(string) (string, bool)) string {
	for _, key := range []string{connStringEnv, databaseURLEnv} {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func buildConnString(conn pgmcp.ConnectionConfig, username, password string) string {
	parts := []string{}
	if conn.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", conn.Host))
	}
	if conn.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", conn.Port))
	}
	if conn.DBName != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", conn.DBName))
	}
	if username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", username))
	}
	if password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quoteConnValue(password)))
	}
	if conn.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", conn.SSLMode))
	}
	return strings.Join(parts, " ")
}

// quoteConnValue quotes a keyword/value connection string value when it
// contains spaces, quotes or backslashes.
func quoteConnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// setupLogger builds the process logger. With the stdio transport stdout
// carries the protocol, so logs never go there.
func setupLogger(config pgmcp.LoggingConfig, transport string) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	switch {
	case config.Output == "stdout" && transport != "stdio":
		output = os.Stdout
	case config.Output != "" && config.Output != "stderr" && config.Output != "stdout":
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "mypgmcp").Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}
