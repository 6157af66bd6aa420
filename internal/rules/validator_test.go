package rules

import (
	"reflect"
	"testing"

	"github.com/claude/freeflow/internal/models"
)

func move(id string, tier models.Tier, p models.Pattern, muscles ...string) models.Movement {
	return models.Movement{ID: id, Name: id, Tier: tier, Pattern: p, Muscles: muscles}
}

// seqOf interleaves transitions between the given movements.
func seqOf(ms ...models.Movement) models.Sequence {
	var s models.Sequence
	for i, m := range ms {
		if i > 0 {
			s.Entries = append(s.Entries, models.TransitionEntry(models.NewTransition(ms[i-1], m, 60)))
		}
		s.Entries = append(s.Entries, models.MovementEntry(m, 180))
	}
	return s
}

var (
	warm    = move("warm", models.Tier1, models.PatternNeutral, models.MuscleCore)
	roll    = move("roll", models.Tier1, models.PatternFlexion, models.MuscleBack)
	swan    = move("swan", models.Tier2, models.PatternExtension, models.MuscleGlutes)
	saw     = move("saw", models.Tier2, models.PatternRotation, models.MuscleShoulders)
	teaser  = move("teaser", models.Tier3, models.PatternFlexion, models.MuscleLegs)
	side    = move("side", models.Tier1, models.PatternLateral, models.MuscleHips)
	stretch = models.Movement{ID: "stretch", Name: "stretch", Tier: models.Tier1, Pattern: models.PatternFlexion, Muscles: []string{models.MuscleArms}, Stretch: true}
)

// TestValidSequence verifies a well-formed session passes and carries its balance score.
func TestValidSequence(t *testing.T) {
	v := New(DefaultConfig())
	got := v.Validate(seqOf(warm, roll, swan, saw, side))
	if !got.Valid {
		t.Fatalf("verdict = %v, want Valid", got)
	}
	if got.BalanceScore != 1.0 {
		t.Errorf("balance score = %v, want 1.0 for one movement per group", got.BalanceScore)
	}
	if got.Index != -1 {
		t.Errorf("index = %d, want -1", got.Index)
	}
}

// TestSpinalProgressionExample verifies [A(Extension), T, B(Flexion)] fails at entry 2.
func TestSpinalProgressionExample(t *testing.T) {
	a := move("a", models.Tier1, models.PatternExtension, models.MuscleBack)
	b := move("b", models.Tier1, models.PatternFlexion, models.MuscleCore)
	got := New(DefaultConfig()).Validate(seqOf(a, b))
	if got.Valid || got.Rule != models.RuleSpinalProgression {
		t.Fatalf("verdict = %v, want SPINAL_PROGRESSION", got)
	}
	if got.Index != 2 {
		t.Errorf("offending index = %d, want 2", got.Index)
	}
}

// TestSpinalProgressionReset verifies a neutral or lateral movement clears the extension state.
func TestSpinalProgressionReset(t *testing.T) {
	v := New(DefaultConfig())
	for _, reset := range []models.Movement{warm, side} {
		got := v.Validate(seqOf(warm, swan, reset, roll, side))
		if got.Rule == models.RuleSpinalProgression {
			t.Errorf("reset by %s: verdict = %v, want no spinal violation", reset.ID, got)
		}
	}

	// Rotation is not a reset in the default configuration.
	got := v.Validate(seqOf(warm, swan, saw, teaser, side))
	if got.Rule != models.RuleSpinalProgression || got.Index != 6 {
		t.Errorf("verdict = %v, want SPINAL_PROGRESSION at 6", got)
	}

	cfg := DefaultConfig()
	cfg.ResetPatterns = append(cfg.ResetPatterns, models.PatternRotation)
	if got := New(cfg).Validate(seqOf(warm, swan, saw, teaser, side)); got.Rule == models.RuleSpinalProgression {
		t.Errorf("with rotation reset: verdict = %v, want no spinal violation", got)
	}
}

// TestCooldownRequiredExample verifies a flexion finish without a stretch tag fails.
func TestCooldownRequiredExample(t *testing.T) {
	got := New(DefaultConfig()).Validate(seqOf(warm, saw, roll))
	if got.Rule != models.RuleCooldownRequired {
		t.Fatalf("verdict = %v, want COOLDOWN_REQUIRED", got)
	}
	if got.Index != 4 {
		t.Errorf("index = %d, want 4", got.Index)
	}

	if got := New(DefaultConfig()).Validate(seqOf(warm, saw, stretch)); !got.Valid {
		t.Errorf("stretch finish: verdict = %v, want Valid", got)
	}
}

// TestEmptySequence verifies the non-empty rule fires first.
func TestEmptySequence(t *testing.T) {
	got := New(DefaultConfig()).Validate(models.Sequence{})
	if got.Rule != models.RuleNonEmpty {
		t.Fatalf("verdict = %v, want NON_EMPTY", got)
	}
	onlyTransition := models.Sequence{Entries: []models.Entry{models.TransitionEntry(models.Transition{Seconds: 60})}}
	if got := New(DefaultConfig()).Validate(onlyTransition); got.Rule != models.RuleNonEmpty {
		t.Errorf("transition-only verdict = %v, want NON_EMPTY", got)
	}
}

// TestWarmupFirst verifies a hard opener is rejected and a neutral advanced opener is accepted.
func TestWarmupFirst(t *testing.T) {
	v := New(DefaultConfig())
	if got := v.Validate(seqOf(swan, side)); got.Rule != models.RuleWarmupFirst || got.Index != 0 {
		t.Errorf("verdict = %v, want WARMUP_FIRST at 0", got)
	}
	neutralAdvanced := move("flow", models.Tier3, models.PatternNeutral, models.MuscleCore)
	if got := v.Validate(seqOf(neutralAdvanced, side)); got.Rule == models.RuleWarmupFirst {
		t.Errorf("neutral opener rejected: %v", got)
	}
}

// TestMuscleOverload verifies a group above 40% of movements is reported with its tag.
func TestMuscleOverload(t *testing.T) {
	c1 := move("c1", models.Tier1, models.PatternNeutral, models.MuscleCore)
	c2 := move("c2", models.Tier1, models.PatternRotation, models.MuscleCore)
	l1 := move("l1", models.Tier1, models.PatternBalance, models.MuscleLegs)
	b1 := move("b1", models.Tier1, models.PatternLateral, models.MuscleBack)
	// core appears in 2 of 4 movements = 50%.
	got := New(DefaultConfig()).Validate(seqOf(c1, l1, c2, b1))
	if got.Rule != models.RuleMuscleOverload {
		t.Fatalf("verdict = %v, want MUSCLE_OVERLOAD", got)
	}
	if got.Tag != models.MuscleCore {
		t.Errorf("tag = %q, want core", got.Tag)
	}
	if got.Index != 4 {
		t.Errorf("index = %d, want 4 (second core movement)", got.Index)
	}

	cfg := DefaultConfig()
	cfg.OverloadCeiling = 0.5
	if got := New(cfg).Validate(seqOf(c1, l1, c2, b1)); !got.Valid {
		t.Errorf("with 50%% ceiling verdict = %v, want Valid", got)
	}
}

// TestMuscleOverloadShortSequenceExempt verifies sequences below the minimum length skip the balance rule.
func TestMuscleOverloadShortSequenceExempt(t *testing.T) {
	c1 := move("c1", models.Tier1, models.PatternNeutral, models.MuscleCore)
	c2 := move("c2", models.Tier1, models.PatternLateral, models.MuscleCore)
	if got := New(DefaultConfig()).Validate(seqOf(c1, c2)); !got.Valid {
		t.Errorf("verdict = %v, want Valid", got)
	}
}

// TestComplexityProgression verifies a second ascent after a descent is rejected.
func TestComplexityProgression(t *testing.T) {
	v := New(DefaultConfig())
	peak := move("peak", models.Tier3, models.PatternRotation, models.MuscleLegs)
	down := move("down", models.Tier2, models.PatternBalance, models.MuscleArms)
	up := move("up", models.Tier3, models.PatternBalance, models.MuscleChest)
	mid := move("mid", models.Tier2, models.PatternBalance, models.MuscleShoulders)
	if got := v.Validate(seqOf(warm, mid, peak, down, side)); !got.Valid {
		t.Errorf("single peak verdict = %v, want Valid", got)
	}
	// A plateau is not a descent.
	got := v.Validate(seqOf(warm, mid, down, up, side))
	if !got.Valid {
		t.Errorf("flat then rise verdict = %v, want Valid", got)
	}
	got = v.Validate(seqOf(warm, peak, down, up, side))
	if got.Rule != models.RuleComplexityProgression || got.Index != 6 {
		t.Errorf("verdict = %v, want COMPLEXITY_PROGRESSION at 6", got)
	}
}

// TestPrerequisites verifies at least one prerequisite must appear earlier.
func TestPrerequisites(t *testing.T) {
	adv := move("adv", models.Tier1, models.PatternBalance, models.MuscleLegs)
	adv.Prerequisites = []string{"missing", "roll"}
	v := New(DefaultConfig())
	if got := v.Validate(seqOf(warm, roll, adv, side)); !got.Valid {
		t.Errorf("satisfied verdict = %v, want Valid", got)
	}
	got := v.Validate(seqOf(warm, adv, roll, side))
	if got.Rule != models.RulePrerequisiteMissing || got.Index != 2 {
		t.Errorf("verdict = %v, want PREREQUISITE_MISSING at 2", got)
	}
}

// TestStructure verifies misplaced transitions are rejected while movement-only lists pass.
func TestStructure(t *testing.T) {
	v := New(DefaultConfig())
	bare := models.Sequence{Entries: []models.Entry{
		models.MovementEntry(warm, 180),
		models.MovementEntry(side, 180),
	}}
	if got := v.Validate(bare); !got.Valid {
		t.Errorf("movement-only verdict = %v, want Valid", got)
	}

	doubled := seqOf(warm, side)
	doubled.Entries = append(doubled.Entries[:2], append([]models.Entry{doubled.Entries[1]}, doubled.Entries[2:]...)...)
	if got := v.Validate(doubled); got.Rule != models.RuleStructure || got.Index != 2 {
		t.Errorf("double transition verdict = %v, want STRUCTURE at 2", got)
	}

	trailing := seqOf(warm, side)
	trailing.Entries = append(trailing.Entries, models.TransitionEntry(models.Transition{Seconds: 60}))
	if got := v.Validate(trailing); got.Rule != models.RuleStructure || got.Index != 3 {
		t.Errorf("trailing transition verdict = %v, want STRUCTURE at 3", got)
	}

	mislinked := seqOf(warm, side)
	mislinked.Entries[1].Transition.To = "elsewhere"
	if got := v.Validate(mislinked); got.Rule != models.RuleStructure {
		t.Errorf("mislinked verdict = %v, want STRUCTURE", got)
	}
}

// TestValidateIdempotent verifies repeated validation yields identical verdicts.
func TestValidateIdempotent(t *testing.T) {
	v := New(DefaultConfig())
	for _, s := range []models.Sequence{
		seqOf(warm, roll, swan, saw, side),
		seqOf(warm, swan, roll),
		seqOf(swan),
		{},
	} {
		first := v.Validate(s)
		second := v.Validate(s)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("verdicts differ: %v vs %v", first, second)
		}
	}
}

// TestWithAppendsRule verifies custom rules run after the built-ins without altering the original.
func TestWithAppendsRule(t *testing.T) {
	base := New(DefaultConfig())
	noTeaser := Rule{ID: "NO_TEASER", Check: func(s Subject) (models.Verdict, bool) {
		for _, im := range s.Movements {
			if im.Movement.ID == "teaser" {
				return models.Invalid("NO_TEASER", im.Index, "teaser is banned"), false
			}
		}
		return models.Verdict{}, true
	}}
	extended := base.With(noTeaser)

	ids := extended.RuleIDs()
	if ids[len(ids)-1] != "NO_TEASER" {
		t.Errorf("last rule = %s, want NO_TEASER", ids[len(ids)-1])
	}
	if len(base.RuleIDs()) != len(ids)-1 {
		t.Error("With modified the base validator")
	}

	s := seqOf(warm, saw, teaser, side)
	if got := base.Validate(s); !got.Valid {
		t.Errorf("base verdict = %v, want Valid", got)
	}
	if got := extended.Validate(s); got.Rule != "NO_TEASER" || got.Index != 4 {
		t.Errorf("extended verdict = %v, want NO_TEASER at 4", got)
	}
}

// TestRulePriorityOrder verifies the documented evaluation order.
func TestRulePriorityOrder(t *testing.T) {
	want := []string{
		models.RuleNonEmpty,
		models.RuleStructure,
		models.RuleWarmupFirst,
		models.RuleSpinalProgression,
		models.RuleMuscleOverload,
		models.RuleComplexityProgression,
		models.RuleCooldownRequired,
		models.RulePrerequisiteMissing,
	}
	if got := New(DefaultConfig()).RuleIDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("RuleIDs() = %v, want %v", got, want)
	}
}
