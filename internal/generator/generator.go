// Package generator builds movement sequences for a timed session.
//
// Selection is greedy: at every step the least-loaded eligible movement is
// appended and earlier choices are never swapped out. A pass that runs out of
// movements is replanned once per shorter length, and closing may cut the
// sequence back to a cool-down, but there is no search for a globally optimal
// sequence.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/claude/freeflow/internal/balance"
	"github.com/claude/freeflow/internal/budget"
	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/models"
	"github.com/claude/freeflow/internal/rules"
)

// State is a phase of one generation run.
type State string

const (
	StateSeeding    State = "seeding"
	StateExtending  State = "extending"
	StateFinalizing State = "finalizing"
	StateAccepted   State = "accepted"
	StateExhausted  State = "exhausted"
)

// DefaultCooldownRetries bounds the cool-down substitution attempts.
const DefaultCooldownRetries = 3

// ErrInvalidFocus is returned for focus muscle groups outside the taxonomy.
var ErrInvalidFocus = errors.New("invalid focus muscle group")

// Config holds generation parameters.
type Config struct {
	TeachingTimes      budget.TeachingTimes
	TransitionSeconds  int
	MaxCooldownRetries int
	Rules              rules.Config
}

// DefaultConfig returns the stock generation parameters.
func DefaultConfig() Config {
	return Config{
		TeachingTimes:      budget.DefaultTeachingTimes(),
		TransitionSeconds:  60,
		MaxCooldownRetries: DefaultCooldownRetries,
		Rules:              rules.DefaultConfig(),
	}
}

// Request describes the session to plan.
type Request struct {
	DurationSeconds int         `json:"duration_seconds"`
	Tier            models.Tier `json:"tier"`
	Focus           []string    `json:"focus,omitempty"`
}

// Result is a validated sequence with its reports.
type Result struct {
	Sequence models.Sequence `json:"sequence"`
	Balance  balance.Report  `json:"balance"`
	Verdict  models.Verdict  `json:"verdict"`
	Budget   budget.Budget   `json:"budget"`
	// Overrun is set when a cool-down movement was appended past the ceiling.
	Overrun         bool   `json:"overrun,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	CatalogVersion  string `json:"catalog_version,omitempty"`
}

// GenerationFailure reports that no rule-compliant sequence could be built.
// Partial is the last sequence assembled before giving up.
type GenerationFailure struct {
	Rule    string          `json:"rule"`
	Reason  string          `json:"reason"`
	State   State           `json:"state"`
	Partial models.Sequence `json:"partial"`
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failed in %s (%s): %s", e.State, e.Rule, e.Reason)
}

// Generator plans sequences against one catalog view.
type Generator struct {
	view      catalog.View
	cfg       Config
	validator *rules.Validator
	log       *slog.Logger
}

// New returns a generator. The view must not change during a Generate call;
// pass a catalog snapshot.
func New(view catalog.View, cfg Config, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxCooldownRetries <= 0 {
		cfg.MaxCooldownRetries = DefaultCooldownRetries
	}
	return &Generator{
		view:      view,
		cfg:       cfg,
		validator: rules.New(cfg.Rules),
		log:       log,
	}
}

// Validator returns the validator used as the final gate.
func (g *Generator) Validator() *rules.Validator {
	return g.validator
}

// Generate builds a sequence for req. Configuration problems (unknown tier,
// bad duration, unknown focus group) are returned as plain errors; failing to
// satisfy the rules returns a *GenerationFailure.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	b, err := budget.Compute(req.DurationSeconds, req.Tier, g.cfg.TransitionSeconds, g.cfg.TeachingTimes)
	if err != nil {
		return nil, err
	}
	focus, err := normalizeFocus(req.Focus)
	if err != nil {
		return nil, err
	}

	r := &run{
		g:       g,
		req:     req,
		budget:  b,
		focus:   focus,
		pool:    g.view.ListMovements(catalog.Filter{MaxTier: req.Tier}),
		planned: b.Ceiling,
		state:   StateSeeding,
	}
	if b.Warning != "" {
		g.log.Warn("session shorter than one movement", "duration_seconds", req.DurationSeconds, "tier", req.Tier)
	}
	return r.execute(ctx)
}

func normalizeFocus(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		c, known := models.NormalizeMuscle(tag)
		if !known {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFocus, tag)
		}
		out = append(out, c)
	}
	return out, nil
}

// run is the request-scoped state of one Generate call.
type run struct {
	g       *Generator
	req     Request
	budget  budget.Budget
	focus   []string
	pool    []models.Movement
	planned int
	state   State
	path    *path
	overrun bool
}

func (r *run) transition(to State) {
	r.g.log.Debug("generator state", "from", r.state, "to", to, "movements", r.movementCount())
	r.state = to
}

func (r *run) movementCount() int {
	if r.path == nil {
		return 0
	}
	return len(r.path.chosen)
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	if len(r.pool) == 0 {
		return nil, r.fail(models.RuleNonEmpty, fmt.Sprintf("catalog has no movements at or below %v", r.req.Tier))
	}

	seed, ok := r.seed()
	if !ok {
		return nil, r.fail(models.RuleWarmupFirst, fmt.Sprintf("catalog has no warm-up movement at or below %v", r.req.Tier))
	}

	r.transition(StateExtending)
	for {
		r.path = newPath(r, nil)
		r.path.push(seed)
		if err := r.extend(ctx); err != nil {
			return nil, err
		}
		n := len(r.path.chosen)
		if n >= r.planned {
			break
		}
		// A shorter sequence has a tighter overload limit; plan again for
		// the length the catalog actually supports.
		r.g.log.Debug("catalog exhausted before ceiling", "movements", n, "planned", r.planned, "ceiling", r.budget.Ceiling)
		r.planned = n
	}

	r.transition(StateFinalizing)
	return r.finalize()
}

// extend appends ranked movements until the plan is full or nothing fits.
func (r *run) extend(ctx context.Context) error {
	for len(r.path.chosen) < r.planned {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, ok := r.pick(r.path, r.reserveCooldown(r.path))
		if !ok {
			return nil
		}
		r.path.push(next)
	}
	return nil
}

// reserveCooldown keeps one unused cool-down movement back for the closing
// slot while earlier slots are filled.
func (r *run) reserveCooldown(p *path) func(models.Movement) bool {
	return func(m models.Movement) bool {
		if !m.IsCooldown() || len(p.chosen)+1 >= r.planned {
			return true
		}
		for _, o := range r.pool {
			if o.ID != m.ID && o.IsCooldown() && !p.used[o.ID] {
				return true
			}
		}
		return false
	}
}

// seed picks the opening movement: warm-up eligible, no prerequisites, lowest
// tier first, then by balance rank.
func (r *run) seed() (models.Movement, bool) {
	lowest := models.Tier(math.MaxInt)
	var warmups []models.Movement
	for _, m := range r.pool {
		if !m.IsWarmup() || len(m.Prerequisites) > 0 {
			continue
		}
		switch {
		case m.Tier < lowest:
			lowest = m.Tier
			warmups = []models.Movement{m}
		case m.Tier == lowest:
			warmups = append(warmups, m)
		}
	}
	if len(warmups) == 0 {
		return models.Movement{}, false
	}
	return balance.NewTracker(r.focus...).Rank(warmups)[0], true
}

// pick returns the top-ranked movement that may follow p, optionally
// restricted by accept.
func (r *run) pick(p *path, accept func(models.Movement) bool) (models.Movement, bool) {
	ranked := r.ranked(p, accept)
	if len(ranked) == 0 {
		return models.Movement{}, false
	}
	return ranked[0], true
}

func (r *run) ranked(p *path, accept func(models.Movement) bool) []models.Movement {
	var candidates []models.Movement
	for _, m := range r.pool {
		if p.allows(m) && (accept == nil || accept(m)) {
			candidates = append(candidates, m)
		}
	}
	return p.tracker.Rank(candidates)
}

// finalize makes sure the sequence closes with a cool-down movement, then
// runs the validator as the final gate. When neither substitution nor an
// extra movement can close it, the sequence is cut back to its longest valid
// prefix that ends in a cool-down.
func (r *run) finalize() (*Result, error) {
	last := r.path.chosen[len(r.path.chosen)-1]
	if last.IsCooldown() && r.g.validator.Validate(r.path.sequence()).Valid {
		return r.accept(r.path)
	}

	cooldown := func(m models.Movement) bool { return m.IsCooldown() }
	retries := r.g.cfg.MaxCooldownRetries

	// Substitute the last movement.
	prefix := newPath(r, r.path.chosen[:len(r.path.chosen)-1])
	var subs []models.Movement
	if len(prefix.chosen) == 0 {
		subs = r.openers(cooldown)
	} else {
		subs = r.ranked(prefix, cooldown)
	}
	for i := 0; i < len(subs) && i < retries; i++ {
		trial := prefix.with(subs[i])
		if v := r.g.validator.Validate(trial.sequence()); v.Valid {
			r.g.log.Debug("cool-down substitution", "replaced", last.ID, "with", subs[i].ID, "attempt", i+1)
			return r.accept(trial)
		}
	}

	// Append one extra cool-down movement past the ceiling.
	extra := r.ranked(r.path, cooldown)
	for i := 0; i < len(extra) && i < retries; i++ {
		trial := r.path.with(extra[i])
		if v := r.g.validator.Validate(trial.sequence()); v.Valid {
			r.g.log.Debug("cool-down appended past ceiling", "movement", extra[i].ID)
			r.overrun = true
			return r.accept(trial)
		}
	}

	for k := len(r.path.chosen) - 1; k > 0; k-- {
		if !r.path.chosen[k-1].IsCooldown() {
			continue
		}
		trial := newPath(r, r.path.chosen[:k])
		if v := r.g.validator.Validate(trial.sequence()); v.Valid {
			r.g.log.Debug("sequence cut back to last cool-down", "movements", k, "dropped", len(r.path.chosen)-k)
			return r.accept(trial)
		}
	}

	return nil, r.fail(models.RuleCooldownRequired,
		fmt.Sprintf("no cool-down movement could close the sequence after %d substitution and %d append attempts",
			min(len(subs), retries), min(len(extra), retries)))
}

// openers lists movements that may open a session on their own, ranked.
func (r *run) openers(accept func(models.Movement) bool) []models.Movement {
	var out []models.Movement
	for _, m := range r.pool {
		if m.IsWarmup() && len(m.Prerequisites) == 0 && accept(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return balance.NewTracker(r.focus...).Rank(out)
}

func (r *run) accept(p *path) (*Result, error) {
	r.path = p
	seq := p.sequence()
	verdict := r.g.validator.Validate(seq)
	if !verdict.Valid {
		return nil, r.fail(verdict.Rule, verdict.Message)
	}
	r.transition(StateAccepted)

	res := &Result{
		Sequence:        seq,
		Balance:         p.tracker.Report(),
		Verdict:         verdict,
		Budget:          r.budget,
		Overrun:         r.overrun,
		DurationSeconds: seq.Duration(),
	}
	if s, ok := r.g.view.(*catalog.Snapshot); ok {
		res.CatalogVersion = s.Version()
	}
	r.g.log.Info("sequence generated",
		"tier", r.req.Tier,
		"duration_seconds", res.DurationSeconds,
		"movements", len(p.chosen),
		"ceiling", r.budget.Ceiling,
		"balance_score", verdict.BalanceScore,
		"overrun", r.overrun,
	)
	return res, nil
}

func (r *run) fail(rule, reason string) error {
	r.transition(StateExhausted)
	f := &GenerationFailure{Rule: rule, Reason: reason, State: StateExhausted}
	if r.path != nil {
		f.Partial = r.path.sequence()
	}
	r.g.log.Info("sequence generation failed", "tier", r.req.Tier, "rule", rule, "reason", reason,
		"partial_movements", r.movementCount())
	return f
}
