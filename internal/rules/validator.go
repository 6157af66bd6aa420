// Package rules validates ordered movement sequences against an ordered list
// of safety and quality rules. The first violated rule decides the verdict.
package rules

import (
	"sort"

	"github.com/claude/freeflow/internal/balance"
	"github.com/claude/freeflow/internal/models"
)

// Config tunes the configurable rules.
type Config struct {
	// OverloadCeiling is the largest share of movements one muscle group may appear in.
	OverloadCeiling float64
	// ResetPatterns clear the spinal progression state after an extension.
	ResetPatterns []models.Pattern
	// MinMovementsForBalance exempts very short sequences from the overload rule.
	MinMovementsForBalance int
}

// DefaultConfig returns the stock rule configuration.
func DefaultConfig() Config {
	return Config{
		OverloadCeiling:        0.40,
		ResetPatterns:          []models.Pattern{models.PatternNeutral, models.PatternLateral},
		MinMovementsForBalance: 3,
	}
}

// Subject is the read-only view of a sequence handed to every rule.
type Subject struct {
	Sequence  models.Sequence
	Movements []models.IndexedMovement
}

// Check inspects a subject. It returns ok=false together with the violation.
type Check func(s Subject) (violation models.Verdict, ok bool)

// Rule pairs a rule identifier with its check.
type Rule struct {
	ID    string
	Check Check
}

// Validator evaluates rules in priority order. It holds no mutable state and
// may be shared between goroutines.
type Validator struct {
	cfg   Config
	rules []Rule
}

// New returns a validator with the built-in rules in priority order.
func New(cfg Config) *Validator {
	v := &Validator{cfg: cfg}
	reset := make(map[models.Pattern]bool, len(cfg.ResetPatterns))
	for _, p := range cfg.ResetPatterns {
		reset[p] = true
	}
	v.rules = []Rule{
		{ID: models.RuleNonEmpty, Check: checkNonEmpty},
		{ID: models.RuleStructure, Check: checkStructure},
		{ID: models.RuleWarmupFirst, Check: checkWarmupFirst},
		{ID: models.RuleSpinalProgression, Check: spinalProgression(reset)},
		{ID: models.RuleMuscleOverload, Check: muscleOverload(cfg.OverloadCeiling, cfg.MinMovementsForBalance)},
		{ID: models.RuleComplexityProgression, Check: checkComplexity},
		{ID: models.RuleCooldownRequired, Check: checkCooldown},
		{ID: models.RulePrerequisiteMissing, Check: checkPrerequisites},
	}
	return v
}

// With returns a copy of v with extra rules appended after the built-in ones.
func (v *Validator) With(extra ...Rule) *Validator {
	out := &Validator{cfg: v.cfg, rules: make([]Rule, 0, len(v.rules)+len(extra))}
	out.rules = append(out.rules, v.rules...)
	out.rules = append(out.rules, extra...)
	return out
}

// RuleIDs lists the rule identifiers in evaluation order.
func (v *Validator) RuleIDs() []string {
	ids := make([]string, len(v.rules))
	for i, r := range v.rules {
		ids[i] = r.ID
	}
	return ids
}

// Config returns the configuration the validator was built with.
func (v *Validator) Config() Config {
	return v.cfg
}

// Validate evaluates every rule against seq and returns the first violation,
// or a Valid verdict. The balance score over the full sequence is attached
// either way.
func (v *Validator) Validate(seq models.Sequence) models.Verdict {
	subj := Subject{Sequence: seq, Movements: seq.Movements()}
	score := balance.Of(seq).Score()

	for _, r := range v.rules {
		violation, ok := r.Check(subj)
		if ok {
			continue
		}
		if violation.Rule == "" {
			violation.Rule = r.ID
		}
		violation.BalanceScore = score
		return violation
	}
	return models.ValidVerdict(score)
}

func checkNonEmpty(s Subject) (models.Verdict, bool) {
	if len(s.Movements) == 0 {
		return models.Invalid(models.RuleNonEmpty, -1, "sequence contains no movements"), false
	}
	return models.Verdict{}, true
}

// checkStructure requires movements and transitions to alternate, starting
// and ending with a movement. Movement-only lists are accepted as-is.
func checkStructure(s Subject) (models.Verdict, bool) {
	entries := s.Sequence.Entries
	hasTransition := false
	for i, e := range entries {
		switch e.Kind {
		case models.KindMovement:
			if e.Movement == nil {
				return models.Invalid(models.RuleStructure, i, "movement entry %d has no movement", i), false
			}
		case models.KindTransition:
			if e.Transition == nil {
				return models.Invalid(models.RuleStructure, i, "transition entry %d has no transition", i), false
			}
			hasTransition = true
		default:
			return models.Invalid(models.RuleStructure, i, "entry %d has unknown kind %q", i, e.Kind), false
		}
	}
	if !hasTransition {
		return models.Verdict{}, true
	}

	if !entries[0].IsMovement() {
		return models.Invalid(models.RuleStructure, 0, "sequence must begin with a movement"), false
	}
	last := len(entries) - 1
	if !entries[last].IsMovement() {
		return models.Invalid(models.RuleStructure, last, "sequence must end with a movement"), false
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Kind == entries[i-1].Kind {
			return models.Invalid(models.RuleStructure, i,
				"entries %d and %d are both %ss; movements and transitions must alternate", i-1, i, entries[i].Kind), false
		}
	}
	for i := 1; i < last; i++ {
		if tr := entries[i].Transition; tr != nil {
			prev, next := entries[i-1].Movement, entries[i+1].Movement
			if (tr.From != "" && tr.From != prev.ID) || (tr.To != "" && tr.To != next.ID) {
				return models.Invalid(models.RuleStructure, i,
					"transition %d links %s->%s but sits between %s and %s", i, tr.From, tr.To, prev.ID, next.ID), false
			}
		}
	}
	return models.Verdict{}, true
}

func checkWarmupFirst(s Subject) (models.Verdict, bool) {
	first := s.Movements[0]
	if !first.Movement.IsWarmup() {
		return models.Invalid(models.RuleWarmupFirst, first.Index,
			"first movement %s is %s at %v; a session must open with a neutral/warm-up or %v movement",
			first.Movement.ID, first.Movement.Pattern, first.Movement.Tier, models.LowestTier), false
	}
	return models.Verdict{}, true
}

// spinalProgression forbids flexion once extension has occurred, until a
// reset pattern clears the state.
func spinalProgression(reset map[models.Pattern]bool) Check {
	return func(s Subject) (models.Verdict, bool) {
		extended := false
		extendedBy := ""
		for _, im := range s.Movements {
			p := im.Movement.Pattern
			switch {
			case reset[p]:
				extended = false
			case p == models.PatternExtension:
				extended = true
				extendedBy = im.Movement.ID
			case p == models.PatternFlexion && extended:
				return models.Invalid(models.RuleSpinalProgression, im.Index,
					"flexion movement %s follows extension movement %s without a reset", im.Movement.ID, extendedBy), false
			}
		}
		return models.Verdict{}, true
	}
}

// muscleOverload rejects the first movement at which a muscle group's running
// count exceeds ceiling * total movements.
func muscleOverload(ceiling float64, minMovements int) Check {
	return func(s Subject) (models.Verdict, bool) {
		total := len(s.Movements)
		if total < minMovements {
			return models.Verdict{}, true
		}
		limit := ceiling * float64(total)
		counts := make(map[string]int)
		for _, im := range s.Movements {
			tags := append([]string(nil), im.Movement.Muscles...)
			sort.Strings(tags)
			for _, tag := range tags {
				counts[tag]++
				if float64(counts[tag]) > limit+1e-9 {
					final := 0
					for _, other := range s.Movements {
						if other.Movement.HasMuscle(tag) {
							final++
						}
					}
					v := models.Invalid(models.RuleMuscleOverload, im.Index,
						"muscle group %s is worked by %d of %d movements (%.0f%%), above the %.0f%% ceiling",
						tag, final, total, 100*float64(final)/float64(total), 100*ceiling)
					v.Tag = tag
					return v, false
				}
			}
		}
		return models.Verdict{}, true
	}
}

// checkComplexity requires tiers to rise then fall at most once.
func checkComplexity(s Subject) (models.Verdict, bool) {
	descending := false
	prev := s.Movements[0].Movement.Tier
	for _, im := range s.Movements[1:] {
		t := im.Movement.Tier
		switch {
		case t < prev:
			descending = true
		case t > prev && descending:
			return models.Invalid(models.RuleComplexityProgression, im.Index,
				"%s rises to %v after complexity had started to descend", im.Movement.ID, t), false
		}
		prev = t
	}
	return models.Verdict{}, true
}

func checkCooldown(s Subject) (models.Verdict, bool) {
	last := s.Movements[len(s.Movements)-1]
	if !last.Movement.IsCooldown() {
		return models.Invalid(models.RuleCooldownRequired, last.Index,
			"last movement %s is %s; a session must close with a neutral, lateral or stretch movement",
			last.Movement.ID, last.Movement.Pattern), false
	}
	return models.Verdict{}, true
}

func checkPrerequisites(s Subject) (models.Verdict, bool) {
	seen := make(map[string]bool, len(s.Movements))
	for _, im := range s.Movements {
		if prereqs := im.Movement.Prerequisites; len(prereqs) > 0 && !anySeen(seen, prereqs) {
			return models.Invalid(models.RulePrerequisiteMissing, im.Index,
				"%s requires one of %v earlier in the sequence", im.Movement.ID, prereqs), false
		}
		seen[im.Movement.ID] = true
	}
	return models.Verdict{}, true
}

func anySeen(seen map[string]bool, ids []string) bool {
	for _, id := range ids {
		if seen[id] {
			return true
		}
	}
	return false
}
