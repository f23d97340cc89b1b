// Package api exposes the query operations over the Model Context Protocol.
// Tool parameter schemas are declared statically at registration time; no
// reflection over handler signatures.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/solrmcp/internal/history"
	"github.com/kalambet/solrmcp/internal/ollama"
	"github.com/kalambet/solrmcp/internal/solr"
	"github.com/kalambet/solrmcp/internal/sqlparse"
)

// Querier abstracts the query pipeline for the MCP layer.
type Querier interface {
	ListCollections(ctx context.Context) ([]string, error)
	ListFields(ctx context.Context, collection string) ([]solr.Field, error)
	Select(ctx context.Context, rawSQL string) (*solr.ResultSet, error)
	VectorSelect(ctx context.Context, rawSQL string, vector []float32, field string) (*solr.ResultSet, error)
	SemanticSelect(ctx context.Context, rawSQL, text, field string) (*solr.ResultSet, error)
}

// Recorder persists executed queries. Recording failures are logged, never
// surfaced to the caller.
type Recorder interface {
	Record(e history.Entry) (string, error)
	Recent(limit int) ([]history.Entry, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Client  Querier
	History Recorder // optional; if nil, queries are not recorded
}

// NewMCPServer creates an MCP server with all query tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"solrmcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("solrmcp — SQL and vector search over Solr collections."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("solr_list_collections",
			mcp.WithDescription("List the collections available in the search cluster."),
		),
		mcpListCollections(deps),
	)

	s.AddTool(
		mcp.NewTool("solr_list_fields",
			mcp.WithDescription("List the fields of a collection, including type, docValues, and vector flags."),
			mcp.WithString("collection", mcp.Description("Collection name"), mcp.Required()),
		),
		mcpListFields(deps),
	)

	s.AddTool(
		mcp.NewTool("solr_select",
			mcp.WithDescription("Execute a SQL SELECT statement against a collection and return a normalized result set."),
			mcp.WithString("query", mcp.Description("SQL SELECT statement (single FROM collection, optional WHERE/ORDER BY/LIMIT/OFFSET)"), mcp.Required()),
		),
		mcpSelect(deps),
	)

	s.AddTool(
		mcp.NewTool("solr_vector_select",
			mcp.WithDescription("Execute a SQL SELECT filtered by similarity to a precomputed embedding vector."),
			mcp.WithString("query", mcp.Description("SQL SELECT statement"), mcp.Required()),
			mcp.WithArray("vector", mcp.Description("Embedding vector as an array of numbers"), mcp.Required()),
			mcp.WithString("field", mcp.Description("Dense-vector field to search; auto-detected when omitted")),
		),
		mcpVectorSelect(deps),
	)

	s.AddTool(
		mcp.NewTool("solr_semantic_select",
			mcp.WithDescription("Execute a SQL SELECT filtered by semantic similarity to free text. The text is embedded via the configured provider."),
			mcp.WithString("query", mcp.Description("SQL SELECT statement"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Free text to embed and search by"), mcp.Required()),
			mcp.WithString("field", mcp.Description("Dense-vector field to search; auto-detected when omitted")),
		),
		mcpSemanticSelect(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"solr://collections",
			"Collections",
			mcp.WithResourceDescription("Live collection names as a JSON array"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCollections(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"solr://recent",
			"Recent Queries",
			mcp.WithResourceDescription("Last 10 executed queries from the history log"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpListCollections(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := deps.Client.ListCollections(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing collections failed: %v", err)), nil
		}
		if names == nil {
			names = []string{}
		}
		b, err := json.Marshal(names)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal collections: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListFields(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		collection, err := req.RequireString("collection")
		if err != nil {
			return mcpError("collection is required"), nil
		}

		fields, err := deps.Client.ListFields(ctx, collection)
		if err != nil {
			return mcpError(fmt.Sprintf("listing fields failed: %v", err)), nil
		}

		type fieldResult struct {
			Name        string `json:"name"`
			Type        string `json:"type"`
			Indexed     bool   `json:"indexed"`
			Stored      bool   `json:"stored"`
			DocValues   bool   `json:"docValues"`
			MultiValued bool   `json:"multiValued"`
			Vector      bool   `json:"vector"`
		}
		results := make([]fieldResult, len(fields))
		for i, f := range fields {
			results[i] = fieldResult{
				Name: f.Name, Type: f.Type, Indexed: f.Indexed, Stored: f.Stored,
				DocValues: f.DocValues, MultiValued: f.MultiValued, Vector: f.Vector,
			}
		}
		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal fields: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSelect(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		started := time.Now()
		rs, err := deps.Client.Select(ctx, query)
		record(deps, "solr_select", query, rs, err, time.Since(started))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return resultJSON(rs)
	}
}

func mcpVectorSelect(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		vector, err := floatSlice(req.GetArguments()["vector"])
		if err != nil {
			return mcpError(err.Error()), nil
		}
		field := req.GetString("field", "")

		started := time.Now()
		rs, err := deps.Client.VectorSelect(ctx, query, vector, field)
		record(deps, "solr_vector_select", query, rs, err, time.Since(started))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return resultJSON(rs)
	}
}

func mcpSemanticSelect(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		field := req.GetString("field", "")

		started := time.Now()
		rs, err := deps.Client.SemanticSelect(ctx, query, text, field)
		record(deps, "solr_semantic_select", query, rs, err, time.Since(started))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return resultJSON(rs)
	}
}

func mcpResourceCollections(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		names, err := deps.Client.ListCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing collections: %w", err)
		}
		if names == nil {
			names = []string{}
		}
		b, err := json.Marshal(names)
		if err != nil {
			return nil, fmt.Errorf("marshaling collections: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.History == nil {
			return nil, fmt.Errorf("query history not available")
		}
		entries, err := deps.History.Recent(10)
		if err != nil {
			return nil, fmt.Errorf("reading query history: %w", err)
		}

		type entrySummary struct {
			ID         string `json:"id"`
			CreatedAt  string `json:"created_at"`
			Tool       string `json:"tool"`
			Collection string `json:"collection,omitempty"`
			Statement  string `json:"statement"`
			Status     string `json:"status"`
			ErrorKind  string `json:"error_kind,omitempty"`
			NumFound   int64  `json:"num_found"`
			DurationMS int64  `json:"duration_ms"`
		}
		summaries := make([]entrySummary, len(entries))
		for i, e := range entries {
			summaries[i] = entrySummary{
				ID:         e.ID,
				CreatedAt:  e.CreatedAt.Format(time.RFC3339),
				Tool:       e.Tool,
				Collection: e.Collection,
				Statement:  e.Statement,
				Status:     e.Status,
				ErrorKind:  e.ErrorKind,
				NumFound:   e.NumFound,
				DurationMS: e.Duration.Milliseconds(),
			}
		}
		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("marshaling history: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// record logs a query execution to history. Best-effort: a history failure
// must never fail the query.
func record(deps MCPDeps, tool, query string, rs *solr.ResultSet, execErr error, dur time.Duration) {
	if deps.History == nil {
		return
	}
	e := history.Entry{
		Tool:       tool,
		Collection: collectionOf(query),
		Statement:  query,
		Duration:   dur,
	}
	if execErr != nil {
		e.Status = "error"
		e.ErrorKind = errorKind(execErr)
	} else {
		e.Status = "ok"
		e.NumFound = rs.NumFound
	}
	if _, err := deps.History.Record(e); err != nil {
		slog.Warn("recording query history failed", "tool", tool, "error", err)
	}
}

// collectionOf extracts the FROM target for history labeling. Unparseable
// statements label as empty; the parse error itself is reported elsewhere.
func collectionOf(query string) string {
	sel, err := sqlparse.Parse(query)
	if err != nil {
		return ""
	}
	return sel.From
}

// errorKind names the error classification for history records.
func errorKind(err error) string {
	var (
		parseErr    *solr.ParseError
		validErr    *solr.ValidationError
		vectorErr   *solr.VectorFieldError
		connErr     *solr.ConnectionError
		execErr     *solr.ExecutionError
		providerErr *ollama.ProviderError
	)
	switch {
	case errors.As(err, &parseErr):
		return "ParseError"
	case errors.As(err, &validErr):
		return "ValidationError"
	case errors.As(err, &vectorErr):
		return "VectorFieldError"
	case errors.As(err, &providerErr):
		return "ProviderError"
	case errors.As(err, &connErr):
		return "ConnectionError"
	case errors.As(err, &execErr):
		return "ExecutionError"
	default:
		return "Error"
	}
}

// floatSlice converts the raw JSON array argument into a vector.
func floatSlice(raw any) ([]float32, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("vector is required and must be a non-empty array of numbers")
	}
	vec := make([]float32, len(arr))
	for i, v := range arr {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("vector element %d is not a number", i)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func resultJSON(rs *solr.ResultSet) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(rs)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result set: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
