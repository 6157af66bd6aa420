package models

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestParseTier verifies numeric, prefixed and named tier spellings.
func TestParseTier(t *testing.T) {
	cases := []struct {
		input string
		want  Tier
	}{
		{"1", Tier1},
		{"Tier2", Tier2},
		{"tier 3", Tier3},
		{"Beginner", Tier1},
		{"ADVANCED", Tier3},
		{"7", Tier(7)},
	}
	for _, tc := range cases {
		got, err := ParseTier(tc.input)
		if err != nil {
			t.Errorf("ParseTier(%q): unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseTier(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}

	if _, err := ParseTier("expert-ish"); err == nil {
		t.Error("expected error for unrecognized tier")
	}
}

// TestParsePattern verifies pattern aliases, including the warm-up spellings.
func TestParsePattern(t *testing.T) {
	cases := []struct {
		input string
		want  Pattern
	}{
		{"Flexion", PatternFlexion},
		{"extension", PatternExtension},
		{"Neutral/Warm-up", PatternNeutral},
		{"warmup", PatternNeutral},
		{" side bend ", PatternLateral},
	}
	for _, tc := range cases {
		got, err := ParsePattern(tc.input)
		if err != nil {
			t.Errorf("ParsePattern(%q): unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePattern(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
	if _, err := ParsePattern("twist-and-shout"); err == nil {
		t.Error("expected error for unknown pattern")
	}
}

// TestNormalizeMuscleUnknown verifies unknown tags come back trimmed with known=false.
func TestNormalizeMuscleUnknown(t *testing.T) {
	got, known := NormalizeMuscle("  Pinky Toe ")
	if known {
		t.Error("expected known=false")
	}
	if got != "Pinky Toe" {
		t.Errorf("got %q, want %q", got, "Pinky Toe")
	}
	if c, ok := NormalizeMuscle("ABS"); !ok || c != MuscleCore {
		t.Errorf("NormalizeMuscle(ABS) = %q,%v, want core,true", c, ok)
	}
}

// TestMovementNormalize verifies tags are canonicalized, deduplicated and sorted.
func TestMovementNormalize(t *testing.T) {
	m := Movement{
		ID:      " swan ",
		Name:    "Swan",
		Tier:    Tier2,
		Pattern: "Extension",
		Muscles: []string{"spine", "Back", "glutes"},
	}
	got, err := m.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "swan" {
		t.Errorf("id = %q, want swan", got.ID)
	}
	if got.Pattern != PatternExtension {
		t.Errorf("pattern = %q, want extension", got.Pattern)
	}
	if len(got.Muscles) != 2 || got.Muscles[0] != MuscleBack || got.Muscles[1] != MuscleGlutes {
		t.Errorf("muscles = %v, want [back glutes]", got.Muscles)
	}
	// The original is untouched.
	if m.Muscles[0] != "spine" {
		t.Errorf("original muscles mutated: %v", m.Muscles)
	}
}

// TestMovementNormalizeRejects verifies missing ids, tiers below the lowest,
// unknown tags and empty tag lists fail.
func TestMovementNormalizeRejects(t *testing.T) {
	bad := []Movement{
		{Name: "No ID", Tier: Tier1, Pattern: PatternNeutral, Muscles: []string{"core"}},
		{ID: "w", Pattern: PatternNeutral, Muscles: []string{"core"}},
		{ID: "v", Tier: -1, Pattern: PatternNeutral, Muscles: []string{"core"}},
		{ID: "x", Tier: Tier1, Pattern: PatternNeutral, Muscles: []string{"elbow"}},
		{ID: "y", Tier: Tier1, Pattern: PatternNeutral},
		{ID: "z", Tier: Tier1, Pattern: "sideways", Muscles: []string{"core"}},
	}
	for _, m := range bad {
		if _, err := m.Normalize(); err == nil {
			t.Errorf("Normalize(%+v): expected error", m)
		}
	}
}

// TestWarmupAndCooldownEligibility verifies the opening and closing predicates.
func TestWarmupAndCooldownEligibility(t *testing.T) {
	cases := []struct {
		m        Movement
		warmup   bool
		cooldown bool
	}{
		{Movement{Tier: Tier3, Pattern: PatternNeutral}, true, true},
		{Movement{Tier: Tier1, Pattern: PatternFlexion}, true, false},
		{Movement{Tier: Tier2, Pattern: PatternExtension}, false, false},
		{Movement{Tier: Tier2, Pattern: PatternLateral}, false, true},
		{Movement{Tier: Tier2, Pattern: PatternFlexion, Stretch: true}, false, true},
	}
	for i, tc := range cases {
		if got := tc.m.IsWarmup(); got != tc.warmup {
			t.Errorf("case %d: IsWarmup = %v, want %v", i, got, tc.warmup)
		}
		if got := tc.m.IsCooldown(); got != tc.cooldown {
			t.Errorf("case %d: IsCooldown = %v, want %v", i, got, tc.cooldown)
		}
	}
}

// TestSequenceAccounting verifies movement indexing and duration totals.
func TestSequenceAccounting(t *testing.T) {
	a := Movement{ID: "a", Name: "A"}
	b := Movement{ID: "b", Name: "B"}
	seq := Sequence{Entries: []Entry{
		MovementEntry(a, 180),
		TransitionEntry(NewTransition(a, b, 60)),
		MovementEntry(b, 240),
	}}

	if got := seq.Duration(); got != 480 {
		t.Errorf("Duration() = %d, want 480", got)
	}
	if got := seq.MovementCount(); got != 2 {
		t.Errorf("MovementCount() = %d, want 2", got)
	}
	mv := seq.Movements()
	if len(mv) != 2 || mv[0].Index != 0 || mv[1].Index != 2 {
		t.Errorf("Movements() = %+v, want indices 0 and 2", mv)
	}

	clone := seq.Clone()
	clone.Entries[0].Movement.Name = "changed"
	if seq.Entries[0].Movement.Name != "A" {
		t.Error("Clone shares movement pointers with the original")
	}
}

// TestTierUnmarshal verifies tiers decode from numbers and names in JSON and YAML.
func TestTierUnmarshal(t *testing.T) {
	var req struct {
		Tier Tier `json:"tier" yaml:"tier"`
	}
	for _, doc := range []string{`{"tier": 2}`, `{"tier": "intermediate"}`, `{"tier": "Tier2"}`} {
		if err := json.Unmarshal([]byte(doc), &req); err != nil || req.Tier != Tier2 {
			t.Errorf("json %s = %v, %v", doc, req.Tier, err)
		}
	}
	if err := json.Unmarshal([]byte(`{"tier": "expert"}`), &req); err == nil {
		t.Error("json accepted unknown tier name")
	}
	for _, doc := range []string{"tier: 3", "tier: advanced"} {
		if err := yaml.Unmarshal([]byte(doc), &req); err != nil || req.Tier != Tier3 {
			t.Errorf("yaml %q = %v, %v", doc, req.Tier, err)
		}
	}
}
