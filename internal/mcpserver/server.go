// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Dagaz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dagaz/internal/query"
	"github.com/starford/dagaz/internal/service"
)

// Server wraps the MCP server with Dagaz tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
}

// New creates a new MCP server with all Dagaz tools registered.
func New(svc *service.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Dagaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_presets",
		mcp.WithDescription("Query flattened preset records with conjunctive property filters. "+
			"Read the filter grammar first via the get_query_syntax tool or the "+
			"dagaz://query-syntax resource."),
		mcp.WithString("filters", mcp.Description(`Optional JSON array of predicates, e.g. [{"property":"type","operator":"equals","value":"button"}]`)),
		mcp.WithString("columns", mcp.Description("Optional comma-separated columns to project (empty for the default set)")),
		mcp.WithString("limit", mcp.Description("Optional maximum number of result rows")),
	), s.queryPresets)

	s.mcp.AddTool(mcp.NewTool("list_properties",
		mcp.WithDescription("List the distinct property names present across all preset records."),
	), s.listProperties)

	s.mcp.AddTool(mcp.NewTool("preset_status",
		mcp.WithDescription("Report store readiness, file and record counts, and the last sync time."),
	), s.presetStatus)

	s.mcp.AddTool(mcp.NewTool("sync_presets",
		mcp.WithDescription("Run one sync pass against the preset source and wait for it to finish."),
		mcp.WithString("full", mcp.Description("Set to \"true\" to rebuild the store from scratch")),
	), s.syncPresets)

	s.mcp.AddTool(mcp.NewTool("get_query_syntax",
		mcp.WithDescription("Returns the filter grammar for query_presets. "+
			"Call this before composing filters."),
	), s.getQuerySyntax)

	// Resource: query filter grammar.
	s.mcp.AddResource(
		mcp.NewResource("dagaz://query-syntax", "Query Filter Syntax",
			mcp.WithResourceDescription("Filter operators and projection rules for preset queries."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readQuerySyntaxResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) queryPresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var q query.Request

	if raw, err := req.RequireString("filters"); err == nil && strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &q.Filters); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("filters is not a JSON array of predicates: %v", err)), nil
		}
	}
	if cols, err := req.RequireString("columns"); err == nil {
		for _, c := range strings.Split(cols, ",") {
			if c = strings.TrimSpace(c); c != "" {
				q.Columns = append(q.Columns, c)
			}
		}
	}
	if raw, err := req.RequireString("limit"); err == nil && strings.TrimSpace(raw) != "" {
		n, convErr := strconv.Atoi(strings.TrimSpace(raw))
		if convErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("limit is not a number: %q", raw)), nil
		}
		q.Limit = n
	}

	res, err := s.svc.Query(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listProperties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.svc.Properties(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(names) == 0 {
		return mcp.NewToolResultText("no properties found"), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) presetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(st, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) syncPresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	full := false
	if f, err := req.RequireString("full"); err == nil {
		full = strings.EqualFold(strings.TrimSpace(f), "true")
	}
	sum, err := s.svc.Sync(ctx, full)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"synced %d, deleted %d, unchanged %d, failed %d; store now holds %d files / %d records",
		sum.Synced, sum.Deleted, sum.Unchanged, sum.Failed, sum.Files, sum.Records)), nil
}

func (s *Server) getQuerySyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(QuerySyntax), nil
}

func (s *Server) readQuerySyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dagaz://query-syntax",
			MIMEType: "text/markdown",
			Text:     QuerySyntax,
		},
	}, nil
}
