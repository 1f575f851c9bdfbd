package pgmcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names.
const (
	ToolQueryDatabase = "query-database"
	ToolListTables    = "list-tables"
	ToolDescribeTable = "describe-table"
)

// Resource URIs.
const (
	ResourceTables        = "schema://tables"
	ResourceTableTemplate = "schema://tables/{table}"
)

const jsonMIMEType = "application/json"

// Tools returns the tool definitions with their handlers.
func (p *PostgresMcp) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolQueryDatabase,
				mcp.WithDescription("Execute a read-only SQL query against the PostgreSQL database. Dangerous statements are blocked and unbounded SELECTs are capped with a LIMIT."),
				mcp.WithString("sql",
					mcp.Required(),
					mcp.Description("The SQL query to execute"),
				),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: p.loggedToolHandler(ToolQueryDatabase, p.handleQueryDatabase),
		},
		{
			Tool: mcp.NewTool(ToolListTables,
				mcp.WithDescription("List the tables and views in the public schema."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: p.loggedToolHandler(ToolListTables, p.handleListTables),
		},
		{
			Tool: mcp.NewTool(ToolDescribeTable,
				mcp.WithDescription("Describe the columns of a table: name, data type, nullability and default."),
				mcp.WithString("table",
					mcp.Required(),
					mcp.Description("The table name to describe"),
				),
				mcp.WithString("schema",
					mcp.Description("The schema name (defaults to 'public')"),
				),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: p.loggedToolHandler(ToolDescribeTable, p.handleDescribeTable),
		},
	}
}

// RegisterMCPTools registers the tools and schema resources on mcpServer.
func RegisterMCPTools(mcpServer *server.MCPServer, pgMcp *PostgresMcp) {
	mcpServer.AddTools(pgMcp.Tools()...)

	mcpServer.AddResource(
		mcp.NewResource(ResourceTables, "Database tables",
			mcp.WithResourceDescription("Tables and views in the public schema"),
			mcp.WithMIMEType(jsonMIMEType),
		),
		pgMcp.readTablesResource,
	)
	mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(ResourceTableTemplate, "Table schema",
			mcp.WithTemplateDescription("Columns of a table in the public schema"),
			mcp.WithTemplateMIMEType(jsonMIMEType),
		),
		pgMcp.readTableResource,
	)
}

// CallTool dispatches req by tool name. An unknown name is a
// *ValidationError and never reaches the database.
func (p *PostgresMcp) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	for _, t := range p.Tools() {
		if t.Tool.Name == req.Params.Name {
			return t.Handler(ctx, req)
		}
	}
	return nil, &ValidationError{Field: "name", Reason: "Unknown tool: " + req.Params.Name}
}

func (p *PostgresMcp) handleQueryDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.Params.Name != ToolQueryDatabase {
		return nil, &ValidationError{Field: "name", Reason: "Unknown tool: " + req.Params.Name}
	}
	sql, err := req.RequireString("sql")
	if err != nil || strings.TrimSpace(sql) == "" {
		return nil, &ValidationError{Field: "sql", Reason: "sql parameter is required"}
	}

	output := p.Query(ctx, QueryInput{SQL: sql})
	if output.Err != nil {
		return mcp.NewToolResultError(output.Error), nil
	}
	text, err := FormatQueryResult(output)
	if err != nil {
		return mcp.NewToolResultError("Error executing query: " + err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (p *PostgresMcp) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, err := p.ListTables(ctx, ListTablesInput{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal list tables result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (p *PostgresMcp) handleDescribeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table, err := req.RequireString("table")
	if err != nil || table == "" {
		return nil, &ValidationError{Field: "table", Reason: "table parameter is required"}
	}
	schema := req.GetString("schema", "")

	output, err := p.DescribeTable(ctx, DescribeTableInput{Table: table, Schema: schema})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal describe table result"), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (p *PostgresMcp) readTablesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	output, err := p.ListTables(ctx, ListTablesInput{})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, output.Tables)
}

func (p *PostgresMcp) readTableResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	table, err := tableFromURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	output, err := p.DescribeTable(ctx, DescribeTableInput{Table: table})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, output.Columns)
}

// tableFromURI extracts the table name from schema://tables/{table}.
func tableFromURI(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, ResourceTables+"/")
	if !ok || raw == "" || strings.Contains(raw, "/") {
		return "", &ValidationError{Field: "uri", Reason: fmt.Sprintf("invalid table resource URI %q", uri)}
	}
	table, err := url.PathUnescape(raw)
	if err != nil {
		return "", &ValidationError{Field: "uri", Reason: fmt.Sprintf("invalid table resource URI %q: %v", uri, err)}
	}
	return table, nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	text, err := marshalIndent(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: jsonMIMEType, Text: text},
	}, nil
}

// loggedToolHandler wraps a tool handler to tag the request with an ID and
// log request and response sizes.
func (p *PostgresMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if RequestID(ctx) == "" {
			ctx = WithRequestID(ctx, newRequestID())
		}
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		isError := err != nil || (result != nil && result.IsError)
		p.metrics.ToolCall(tool, isError)

		log := p.loggerFor(ctx)
		logEvent := log.Info()
		var verr *ValidationError
		if errors.As(err, &verr) {
			logEvent = log.Warn().Err(err)
		}
		logEvent.
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Str("response_size", humanize.Bytes(uint64(respLen))).
			Bool("is_error", isError).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
