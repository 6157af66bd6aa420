package generator

import (
	"math"

	"github.com/claude/freeflow/internal/balance"
	"github.com/claude/freeflow/internal/models"
)

// path is a partial sequence plus the incremental rule state needed to decide
// which movements may come next.
type path struct {
	r          *run
	chosen     []models.Movement
	used       map[string]bool
	tracker    *balance.Tracker
	extended   bool
	descending bool
}

func newPath(r *run, prefix []models.Movement) *path {
	p := &path{
		r:       r,
		used:    make(map[string]bool),
		tracker: balance.NewTracker(r.focus...),
	}
	for _, m := range prefix {
		p.push(m)
	}
	return p
}

func (p *path) push(m models.Movement) {
	if n := len(p.chosen); n > 0 && m.Tier < p.chosen[n-1].Tier {
		p.descending = true
	}
	switch {
	case p.isReset(m.Pattern):
		p.extended = false
	case m.Pattern == models.PatternExtension:
		p.extended = true
	}
	p.chosen = append(p.chosen, m)
	p.used[m.ID] = true
	p.tracker.Record(m)
}

// with returns a copy of p extended by m.
func (p *path) with(m models.Movement) *path {
	out := newPath(p.r, p.chosen)
	out.push(m)
	return out
}

func (p *path) isReset(pat models.Pattern) bool {
	for _, reset := range p.r.g.cfg.Rules.ResetPatterns {
		if pat == reset {
			return true
		}
	}
	return false
}

// allows reports whether m may be appended without breaking a rule that the
// prefix can already decide.
func (p *path) allows(m models.Movement) bool {
	if m.Tier > p.r.req.Tier || p.used[m.ID] {
		return false
	}
	if m.Pattern == models.PatternFlexion && p.extended {
		return false
	}
	if len(m.Prerequisites) > 0 {
		met := false
		for _, id := range m.Prerequisites {
			if p.used[id] {
				met = true
				break
			}
		}
		if !met {
			return false
		}
	}
	if n := len(p.chosen); n > 0 && p.descending && m.Tier > p.chosen[n-1].Tier {
		return false
	}
	return p.withinLoad(m)
}

// withinLoad checks m against the overload ceiling for the planned movement
// count. Plans shorter than the balance minimum are exempt.
func (p *path) withinLoad(m models.Movement) bool {
	rc := p.r.g.cfg.Rules
	if p.r.planned < rc.MinMovementsForBalance {
		return true
	}
	limit := int(math.Floor(rc.OverloadCeiling*float64(p.r.planned) + 1e-9))
	for _, tag := range m.Muscles {
		if p.tracker.Load(tag)+1 > limit {
			return false
		}
	}
	return true
}

// sequence materializes the path with a transition before every movement
// but the first.
func (p *path) sequence() models.Sequence {
	var seq models.Sequence
	for i, m := range p.chosen {
		if i > 0 {
			seq.Entries = append(seq.Entries, models.TransitionEntry(
				models.NewTransition(p.chosen[i-1], m, p.r.g.cfg.TransitionSeconds)))
		}
		seq.Entries = append(seq.Entries, models.MovementEntry(m, p.r.teachingSeconds(m)))
	}
	return seq
}

func (r *run) teachingSeconds(m models.Movement) int {
	if s, err := r.g.cfg.TeachingTimes.Seconds(m.Tier); err == nil {
		return s
	}
	return r.budget.PerMovement
}
