// Package mcp exposes the report analyzer as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medreport-analyzer/internal/domain"
	"github.com/medreport-analyzer/internal/history"
	"github.com/medreport-analyzer/internal/logging"
	"github.com/medreport-analyzer/internal/service"
)

// Dependencies are the collaborators the tools call into.
type Dependencies struct {
	Analyzer *service.ReportAnalyzer
	History  history.Store // nil hides the history tools
	Logger   *logrus.Logger
}

// Server wraps the SDK server and the analyzer behind it.
type Server struct {
	mcpServer *mcp.Server
	analyzer  *service.ReportAnalyzer
	history   history.Store
	logger    *logrus.Logger
	tools     []string
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg domain.MCPConfig, deps Dependencies) (*Server, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("report analyzer is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	name := cfg.ServerName
	if name == "" {
		name = "medreport-analyzer"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "v0.1.0"
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		analyzer:  deps.Analyzer,
		history:   deps.History,
		logger:    deps.Logger,
	}
	s.registerTools()

	s.logger.WithFields(logrus.Fields{
		"server_name": name,
		"tool_count":  len(s.tools),
		"provider":    s.analyzer.ProviderName(),
	}).Info("MCP server initialized")

	return s, nil
}

// registerTools registers tools with the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_report",
		Description: "Analyze the text of a medical report. Returns severity-tiered findings, a plain-language summary, possible symptoms, prevention steps and recommendations. Informational only, not a diagnosis.",
	}, s.handleAnalyzeReport)
	s.tools = append(s.tools, "analyze_report")

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "reference_range",
		Description: "Look up the normal reference range for a lab marker such as glucose or TSH. Omit the marker to list every known range.",
	}, s.handleReferenceRange)
	s.tools = append(s.tools, "reference_range")

	if s.history == nil {
		return
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_analyses",
		Description: "List previously stored analyses, newest first.",
	}, s.handleListAnalyses)
	s.tools = append(s.tools, "list_analyses")

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_analysis",
		Description: "Fetch a stored analysis by id.",
	}, s.handleGetAnalysis)
	s.tools = append(s.tools, "get_analysis")
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// MCPServer returns the underlying SDK server, for custom transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Start serves on stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
