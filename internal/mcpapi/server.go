// Package mcpapi exposes the compiler/runtime as MCP tools so an AI
// assistant can drive a compile/apply/test cycle directly. Grounded on
// the teacher's index/mcp_server.go (the real mark3labs/mcp-go
// registration pattern: one mcp.NewTool + handler per capability),
// generalized from "query a code index" tools to "compile and run a
// highstate" tools.
package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mattferris/statecraft/internal/engine"
)

// Server wraps an Engine to provide MCP tool access.
type Server struct {
	eng    *engine.Engine
	server *server.MCPServer
}

// NewServer creates a new MCP server bound to eng.
func NewServer(eng *engine.Engine) *Server {
	s := &Server{eng: eng}

	mcpServer := server.NewMCPServer(
		"statecraft",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.server = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("apply",
			mcp.WithDescription("Compile and execute the highstate for an agent, applying real changes."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent identity to resolve the top file against")),
			mcp.WithString("environment", mcp.Description("Environment (saltenv) to run; defaults to the configured default top env")),
		),
		s.handleApply,
	)

	mcpServer.AddTool(
		mcp.NewTool("test",
			mcp.WithDescription("Dry-run the highstate for an agent: predicts changes without applying them."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent identity to resolve the top file against")),
			mcp.WithString("environment", mcp.Description("Environment (saltenv) to run")),
		),
		s.handleTest,
	)

	mcpServer.AddTool(
		mcp.NewTool("show_top",
			mcp.WithDescription("Show the parsed top-file data for every configured environment."),
		),
		s.handleShowTop,
	)

	mcpServer.AddTool(
		mcp.NewTool("show_highstate",
			mcp.WithDescription("Show the rendered, merged high data for an agent/environment without compiling or running it."),
			mcp.WithString("agent_id", mcp.Required()),
			mcp.WithString("environment", mcp.Description("Environment (saltenv)")),
		),
		s.handleShowHighstate,
	)

	mcpServer.AddTool(
		mcp.NewTool("show_lowstate",
			mcp.WithDescription("Show the compiled, order-resolved chunk list for an agent/environment without running it."),
			mcp.WithString("agent_id", mcp.Required()),
			mcp.WithString("environment", mcp.Description("Environment (saltenv)")),
		),
		s.handleShowLowstate,
	)
}

func (s *Server) defaultEnv(requested string) string {
	if requested != "" {
		return requested
	}
	return s.eng.Opts.DefaultTop
}

func (s *Server) handleApply(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, request, false)
}

func (s *Server) handleTest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, request, true)
}

func (s *Server) run(ctx context.Context, request mcp.CallToolRequest, testMode bool) (*mcp.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id parameter is required"), nil
	}
	saltenv := s.defaultEnv(request.GetString("environment", ""))

	record, err := s.eng.Run(ctx, agentID, saltenv, testMode)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return mcp.NewToolResultText(mustJSON(record)), nil
}

func (s *Server) handleShowTop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.eng.ShowTop()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("show_top failed: %v", err)), nil
	}
	return mcp.NewToolResultText(mustJSON(data)), nil
}

func (s *Server) handleShowHighstate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id parameter is required"), nil
	}
	saltenv := s.defaultEnv(request.GetString("environment", ""))

	units, err := s.eng.ShowHighstate(agentID, saltenv)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("show_highstate failed: %v", err)), nil
	}
	return mcp.NewToolResultText(mustJSON(units)), nil
}

func (s *Server) handleShowLowstate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id parameter is required"), nil
	}
	saltenv := s.defaultEnv(request.GetString("environment", ""))

	ls, _, err := s.eng.ShowLowstate(agentID, saltenv)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("show_lowstate failed: %v", err)), nil
	}
	return mcp.NewToolResultText(mustJSON(ls.Chunks)), nil
}

// ServeStdio starts the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
