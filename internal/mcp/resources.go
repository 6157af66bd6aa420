package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/freeflow/internal/catalog"
)

func (h *handlers) catalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := h.planner.Movements(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, list)
}

func (h *handlers) rules(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	info, err := h.planner.CatalogInfo(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, info)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
