// Package mcp serves the scoring and rule tools over the Model Context
// Protocol so agents can call them directly.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/engine"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	// Actor is recorded for rule changes made through MCP.
	Actor string
}

// Server wraps the MCP SDK server around an engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *engine.Engine
	actor     string
	logger    *zap.Logger
}

// New creates an MCP server exposing eng's tools.
func New(eng *engine.Engine, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "aegis"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Actor == "" {
		cfg.Actor = "mcp"
	}

	s := &Server{engine: eng, actor: cfg.Actor, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_analyze_events",
		Description: "Score log events against the active detection rules. Returns one anomaly per event that matched at least one rule.",
	}, s.handleAnalyze)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_assess_query",
		Description: "Collect the risk signals for a policy question without answering it: effective grade, restricted probe, risky intent.",
	}, s.handleAssess)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_list_rules",
		Description: "List the active detection rules.",
	}, s.handleListRules)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "aegis_validate_rule",
		Description: "Validate one detection rule written in YAML and return its normalized form. Set append to add it to the active rules.",
	}, s.handleValidateRule)
}
