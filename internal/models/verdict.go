package models

import "fmt"

// Rule identifiers reported in Invalid verdicts.
const (
	RuleNonEmpty              = "NON_EMPTY"
	RuleStructure             = "STRUCTURE"
	RuleWarmupFirst           = "WARMUP_FIRST"
	RuleSpinalProgression     = "SPINAL_PROGRESSION"
	RuleMuscleOverload        = "MUSCLE_OVERLOAD"
	RuleComplexityProgression = "COMPLEXITY_PROGRESSION"
	RuleCooldownRequired      = "COOLDOWN_REQUIRED"
	RulePrerequisiteMissing   = "PREREQUISITE_MISSING"
)

// Verdict is the outcome of validating a sequence. A zero Rule means Valid.
// Verdicts are values; validation never mutates them after returning.
type Verdict struct {
	Valid   bool   `json:"valid"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message,omitempty"`
	// Index is the offending position in Sequence.Entries, or -1 when the
	// violation is not tied to a single entry.
	Index int `json:"offending_index"`
	// Tag names the muscle group for MUSCLE_OVERLOAD violations.
	Tag          string  `json:"tag,omitempty"`
	BalanceScore float64 `json:"balance_score"`
}

// ValidVerdict returns a passing verdict.
func ValidVerdict(score float64) Verdict {
	return Verdict{Valid: true, Index: -1, BalanceScore: score}
}

// Invalid returns a failing verdict for rule at index.
func Invalid(rule string, index int, format string, args ...any) Verdict {
	return Verdict{
		Rule:    rule,
		Message: fmt.Sprintf(format, args...),
		Index:   index,
	}
}

func (v Verdict) String() string {
	if v.Valid {
		return "Valid"
	}
	return fmt.Sprintf("Invalid(%s, %q, %d)", v.Rule, v.Message, v.Index)
}
