package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/generator"
	"github.com/claude/freeflow/internal/models"
)

// --- Tool definitions ---

var toolGenerateSequence = mcp.NewTool("generate_sequence",
	mcp.WithDescription("Generate a movement sequence for a timed session. The result alternates movements with transitions, opens with a warm-up, closes with a cool-down, and has passed every safety rule. Fails with the violated rule when the catalog cannot satisfy the request."),
	mcp.WithNumber("duration_seconds", mcp.Required(), mcp.Description("Target session length in seconds (e.g. 1800 for 30 minutes)")),
	mcp.WithString("tier", mcp.Description("Difficulty tier: 1/beginner, 2/intermediate, 3/advanced. Defaults to beginner.")),
	mcp.WithArray("focus", mcp.WithStringItems(), mcp.Description("Muscle groups to prefer when breaking ties (e.g. core, back, glutes)")),
)

var toolValidateSequence = mcp.NewTool("validate_sequence",
	mcp.WithDescription("Validate an ordered list of movement IDs against the safety rules. Transitions are inserted automatically. Returns the verdict (first violated rule and the offending entry index) and the balance report."),
	mcp.WithArray("movement_ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("Movement IDs in session order")),
)

var toolListMovements = mcp.NewTool("list_movements",
	mcp.WithDescription("List catalog movements, optionally filtered by maximum tier, pattern class and muscle groups."),
	mcp.WithString("tier", mcp.Description("Maximum tier to include")),
	mcp.WithString("pattern", mcp.Description("Pattern class"), mcp.Enum("flexion", "extension", "rotation", "lateral", "balance", "neutral")),
	mcp.WithArray("muscles", mcp.WithStringItems(), mcp.Description("Return movements working any of these muscle groups")),
)

var toolComputeBudget = mcp.NewTool("compute_budget",
	mcp.WithDescription("Compute how many movements fit a session of the given length and tier, including transitions."),
	mcp.WithNumber("duration_seconds", mcp.Required(), mcp.Description("Target session length in seconds")),
	mcp.WithString("tier", mcp.Description("Difficulty tier. Defaults to beginner.")),
)

// --- Tool handlers ---

func (h *handlers) generateSequence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	duration, err := req.RequireInt("duration_seconds")
	if err != nil {
		return mcp.NewToolResultError("duration_seconds parameter is required"), nil
	}
	tier, err := models.ParseTier(req.GetString("tier", "1"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := h.planner.Generate(ctx, generator.Request{
		DurationSeconds: duration,
		Tier:            tier,
		Focus:           req.GetStringSlice("focus", nil),
	})
	if err != nil {
		var gf *generator.GenerationFailure
		if errors.As(err, &gf) {
			// Report the violated rule and the partial sequence.
			result, jerr := mcp.NewToolResultJSON(map[string]any{"failure": gf})
			if jerr != nil {
				return mcp.NewToolResultError(gf.Error()), nil
			}
			result.IsError = true
			return result, nil
		}
		h.log.Error("mcp generate_sequence", "error", err)
		return mcp.NewToolResultError("generation failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(res)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) validateSequence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := req.GetStringSlice("movement_ids", nil)
	if len(ids) == 0 {
		return mcp.NewToolResultError("movement_ids parameter is required"), nil
	}

	v, err := h.planner.ValidateIDs(ctx, ids)
	if err != nil {
		return mcp.NewToolResultError("validation failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listMovements(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f catalog.Filter
	if s := req.GetString("tier", ""); s != "" {
		tier, err := models.ParseTier(s)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.MaxTier = tier
	}
	if s := req.GetString("pattern", ""); s != "" {
		p, err := models.ParsePattern(s)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.Pattern = p
	}
	for _, tag := range req.GetStringSlice("muscles", nil) {
		c, known := models.NormalizeMuscle(tag)
		if !known {
			return mcp.NewToolResultError("unknown muscle group: " + strings.TrimSpace(tag)), nil
		}
		f.Muscles = append(f.Muscles, c)
	}

	list, err := h.planner.Movements(ctx, f)
	if err != nil {
		h.log.Error("mcp list_movements", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(list)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) computeBudget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	duration, err := req.RequireInt("duration_seconds")
	if err != nil {
		return mcp.NewToolResultError("duration_seconds parameter is required"), nil
	}
	tier, err := models.ParseTier(req.GetString("tier", "1"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	b, err := h.planner.Budget(ctx, duration, tier)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(b)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
