package mcp

import (
	"context"
	"time"

	"github.com/claude/freeflow/internal/budget"
	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/engine"
	"github.com/claude/freeflow/internal/generator"
	"github.com/claude/freeflow/internal/models"
)

// Planner abstracts the planning engine for MCP tools. Local (in-process)
// and HTTPClient (remote via REST API) satisfy this interface.
type Planner interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
	ValidateIDs(ctx context.Context, ids []string) (*engine.Validation, error)
	Movements(ctx context.Context, f catalog.Filter) (*engine.MovementList, error)
	Budget(ctx context.Context, durationSeconds int, tier models.Tier) (*budget.Budget, error)
	CatalogInfo(ctx context.Context) (*CatalogInfo, error)
}

// CatalogInfo describes the catalog currently in effect.
type CatalogInfo struct {
	Version   string    `json:"version"`
	LoadedAt  time.Time `json:"loaded_at"`
	Movements int       `json:"movements"`
	Rules     []string  `json:"rules"`
}

// Local serves tools straight from an in-process engine.
type Local struct {
	Engine *engine.Engine
}

var _ Planner = Local{}

func (l Local) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	return l.Engine.Generate(ctx, req)
}

func (l Local) ValidateIDs(_ context.Context, ids []string) (*engine.Validation, error) {
	return l.Engine.CheckIDs(ids)
}

func (l Local) Movements(_ context.Context, f catalog.Filter) (*engine.MovementList, error) {
	list := l.Engine.Movements(f)
	return &list, nil
}

func (l Local) Budget(_ context.Context, durationSeconds int, tier models.Tier) (*budget.Budget, error) {
	b, err := l.Engine.Budget(durationSeconds, tier)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (l Local) CatalogInfo(context.Context) (*CatalogInfo, error) {
	snap := l.Engine.Catalog()
	return &CatalogInfo{
		Version:   snap.Version(),
		LoadedAt:  snap.LoadedAt(),
		Movements: snap.Len(),
		Rules:     l.Engine.Rules(),
	}, nil
}
