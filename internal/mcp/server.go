// Package mcp exposes the triage surface over the Model Context
// Protocol so AI staff tooling can query alerts, sessions and metrics.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/convoguard/convoguard/internal/alerts"
	"github.com/convoguard/convoguard/internal/metrics"
	"github.com/convoguard/convoguard/internal/safetyconfig"
	"github.com/convoguard/convoguard/internal/session"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes safety triage tools.
type Server struct {
	alerts   *alerts.Store
	sessions *session.Store
	agg      *metrics.Aggregator
	config   *safetyconfig.Store
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server over the given stores.
func NewServer(alertStore *alerts.Store, sessions *session.Store, agg *metrics.Aggregator, config *safetyconfig.Store) *Server {
	s := &Server{
		alerts:   alertStore,
		sessions: sessions,
		agg:      agg,
		config:   config,
	}

	s.mcp = server.NewMCPServer(
		"convoguard",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(listOpenAlertsTool, s.handleListOpenAlerts)
	s.mcp.AddTool(getAlertTool, s.handleGetAlert)
	s.mcp.AddTool(getSessionTool, s.handleGetSession)
	s.mcp.AddTool(getMetricsTool, s.handleGetMetrics)
	s.mcp.AddTool(getSafetyConfigTool, s.handleGetSafetyConfig)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
