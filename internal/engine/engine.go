// Package engine is the entry point used by every surface (HTTP, MCP, CLI):
// it pins a catalog snapshot per call and runs the generator and validator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/claude/freeflow/internal/balance"
	"github.com/claude/freeflow/internal/budget"
	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/generator"
	"github.com/claude/freeflow/internal/metrics"
	"github.com/claude/freeflow/internal/models"
	"github.com/claude/freeflow/internal/rules"
)

// UnknownMovementError is returned when a sequence names a movement the
// catalog does not contain.
type UnknownMovementError struct {
	ID string
}

func (e *UnknownMovementError) Error() string {
	return fmt.Sprintf("unknown movement %q", e.ID)
}

// Validation is a verdict together with the sequence it was computed for.
type Validation struct {
	Sequence models.Sequence `json:"sequence"`
	Verdict  models.Verdict  `json:"verdict"`
	Balance  balance.Report  `json:"balance"`
}

// MovementList is a filtered catalog listing.
type MovementList struct {
	Version   string            `json:"version"`
	Movements []models.Movement `json:"movements"`
}

// Engine plans and validates sequences against the current catalog.
type Engine struct {
	store     *catalog.Store
	cfg       generator.Config
	validator *rules.Validator
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New returns an engine. m may be nil.
func New(store *catalog.Store, cfg generator.Config, m *metrics.Metrics, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:     store,
		cfg:       cfg,
		validator: rules.New(cfg.Rules),
		metrics:   m,
		log:       log,
	}
}

// Catalog returns the snapshot currently in effect.
func (e *Engine) Catalog() *catalog.Snapshot {
	return e.store.Current()
}

// Store returns the catalog store, for reloads.
func (e *Engine) Store() *catalog.Store {
	return e.store
}

// Rules lists rule identifiers in evaluation order.
func (e *Engine) Rules() []string {
	return e.validator.RuleIDs()
}

// Generate plans a sequence against the snapshot current at call time.
func (e *Engine) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	start := time.Now()
	snap := e.store.Current()
	res, err := generator.New(snap, e.cfg, e.log).Generate(ctx, req)
	elapsed := time.Since(start)

	var gf *generator.GenerationFailure
	switch {
	case err == nil:
		e.metrics.ObserveGeneration("", elapsed, res.Verdict.BalanceScore, true)
	case errors.As(err, &gf):
		e.metrics.ObserveGeneration(gf.Rule, elapsed, 0, false)
	}
	return res, err
}

// Validate checks a caller-supplied sequence. Movements are taken as given;
// use Resolve to build a sequence from catalog IDs.
func (e *Engine) Validate(seq models.Sequence) models.Verdict {
	v := e.validator.Validate(seq)
	e.metrics.ObserveVerdict(v)
	return v
}

// Check validates seq and attaches the balance report. The returned
// Validation holds its own copy of seq.
func (e *Engine) Check(seq models.Sequence) *Validation {
	return &Validation{
		Sequence: seq.Clone(),
		Verdict:  e.Validate(seq),
		Balance:  balance.Of(seq).Report(),
	}
}

// CheckIDs resolves ids against the catalog and validates the result.
func (e *Engine) CheckIDs(ids []string) (*Validation, error) {
	seq, err := e.Resolve(ids)
	if err != nil {
		return nil, err
	}
	return e.Check(seq), nil
}

// Movements lists catalog movements matching f.
func (e *Engine) Movements(f catalog.Filter) MovementList {
	snap := e.store.Current()
	ms := snap.ListMovements(f)
	if ms == nil {
		ms = []models.Movement{}
	}
	return MovementList{Version: snap.Version(), Movements: ms}
}

// Budget computes the movement ceiling for a session.
func (e *Engine) Budget(durationSeconds int, tier models.Tier) (budget.Budget, error) {
	return budget.Compute(durationSeconds, tier, e.cfg.TransitionSeconds, e.cfg.TeachingTimes)
}

// Resolve looks up ids in the current catalog and builds a sequence with a
// transition between consecutive movements.
func (e *Engine) Resolve(ids []string) (models.Sequence, error) {
	snap := e.store.Current()
	var seq models.Sequence
	var prev models.Movement
	for i, id := range ids {
		m, ok := snap.Get(id)
		if !ok {
			return models.Sequence{}, &UnknownMovementError{ID: id}
		}
		if i > 0 {
			seq.Entries = append(seq.Entries, models.TransitionEntry(models.NewTransition(prev, m, e.cfg.TransitionSeconds)))
		}
		secs, err := e.cfg.TeachingTimes.Seconds(m.Tier)
		if err != nil {
			return models.Sequence{}, fmt.Errorf("movement %s: %w", id, err)
		}
		seq.Entries = append(seq.Entries, models.MovementEntry(m, secs))
		prev = m
	}
	return seq, nil
}

// CheckCatalog rejects a snapshot holding a movement whose tier has no
// configured teaching time.
func (e *Engine) CheckCatalog(snap *catalog.Snapshot) error {
	return catalog.RequireTiers(e.cfg.TeachingTimes.Has)(snap)
}

// Reload refreshes the catalog from src and records the outcome.
func (e *Engine) Reload(ctx context.Context, src catalog.Source, cacheSize int) (*catalog.Snapshot, error) {
	snap, err := catalog.Reload(ctx, src, e.store, cacheSize, e.CheckCatalog)
	if err != nil {
		e.metrics.CatalogLoaded(0, err)
		return nil, err
	}
	e.metrics.CatalogLoaded(snap.Len(), nil)
	e.log.Info("catalog loaded", "movements", snap.Len(), "version", snap.Version())
	return snap, nil
}
