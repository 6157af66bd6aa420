package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(p Planner, version string, log *slog.Logger) *server.MCPServer {
	if log == nil {
		log = slog.Default()
	}
	s := server.NewMCPServer("FreeFlow", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("FreeFlow movement sequence planner. Generate timed sessions for a difficulty tier, validate hand-built sequences against the safety rules, and browse the movement catalog. Every generated sequence has already passed validation."),
	)

	h := &handlers{planner: p, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGenerateSequence, Handler: h.generateSequence},
		server.ServerTool{Tool: toolValidateSequence, Handler: h.validateSequence},
		server.ServerTool{Tool: toolListMovements, Handler: h.listMovements},
		server.ServerTool{Tool: toolComputeBudget, Handler: h.computeBudget},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resCatalog, Handler: h.catalog},
		server.ServerResource{Resource: resRules, Handler: h.rules},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	planner Planner
	log     *slog.Logger
}

// --- Resource definitions ---

var resCatalog = mcp.NewResource(
	"freeflow://catalog",
	"Movement Catalog",
	mcp.WithResourceDescription("Every movement in the catalog with tier, pattern class, muscle groups and prerequisites"),
	mcp.WithMIMEType("application/json"),
)

var resRules = mcp.NewResource(
	"freeflow://rules",
	"Safety Rules",
	mcp.WithResourceDescription("Catalog version and the safety rule identifiers in evaluation order"),
	mcp.WithMIMEType("application/json"),
)
