// Package budget converts a target session duration into a movement-count
// ceiling and per-movement time allowances.
package budget

import (
	"errors"
	"fmt"

	"github.com/claude/freeflow/internal/models"
)

// MaxDurationSeconds is the longest session a budget is computed for.
const MaxDurationSeconds = 24 * 60 * 60

var (
	ErrInvalidDuration   = errors.New("target duration must be positive")
	ErrDurationTooLong   = fmt.Errorf("target duration must not exceed %d seconds", MaxDurationSeconds)
	ErrInvalidTransition = errors.New("transition seconds must not be negative")
)

// UnknownTierError is returned when a tier has no configured teaching time.
type UnknownTierError struct {
	Tier models.Tier
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("unknown difficulty tier %d", int(e.Tier))
}

// Warning is non-fatal metadata attached to a budget.
type Warning string

// DurationTooShortWarning means the target cannot fit even one movement; the
// budget still allows one and the caller decides whether to proceed.
const DurationTooShortWarning Warning = "DURATION_TOO_SHORT"

// TeachingTimes maps each known tier to its canonical teaching time in seconds.
type TeachingTimes map[models.Tier]int

// DefaultTeachingTimes is the stock tier mapping.
func DefaultTeachingTimes() TeachingTimes {
	return TeachingTimes{
		models.Tier1: 180,
		models.Tier2: 240,
		models.Tier3: 300,
	}
}

// Seconds returns the teaching time for tier.
func (tt TeachingTimes) Seconds(tier models.Tier) (int, error) {
	s, ok := tt[tier]
	if !ok {
		return 0, &UnknownTierError{Tier: tier}
	}
	return s, nil
}

// Has reports whether tier has a teaching time.
func (tt TeachingTimes) Has(tier models.Tier) bool {
	_, ok := tt[tier]
	return ok
}

// Budget is the result of Compute.
type Budget struct {
	Ceiling           int         `json:"movement_count_ceiling"`
	PerMovement       int         `json:"per_movement_seconds"`
	TransitionSeconds int         `json:"transition_seconds"`
	TargetSeconds     int         `json:"target_seconds"`
	Tier              models.Tier `json:"tier"`
	Warning           Warning     `json:"warning,omitempty"`
}

// Compute returns the largest n with n*per + (n-1)*transition <= target,
// floored at one movement. Targets above MaxDurationSeconds are rejected.
func Compute(targetSeconds int, tier models.Tier, transitionSeconds int, times TeachingTimes) (Budget, error) {
	if targetSeconds <= 0 {
		return Budget{}, ErrInvalidDuration
	}
	if targetSeconds > MaxDurationSeconds {
		return Budget{}, ErrDurationTooLong
	}
	if transitionSeconds < 0 {
		return Budget{}, ErrInvalidTransition
	}
	per, err := times.Seconds(tier)
	if err != nil {
		return Budget{}, err
	}
	if per <= 0 {
		return Budget{}, fmt.Errorf("teaching time for %v must be positive, got %d", tier, per)
	}

	b := Budget{
		PerMovement:       per,
		TransitionSeconds: transitionSeconds,
		TargetSeconds:     targetSeconds,
		Tier:              tier,
	}
	if targetSeconds < per {
		b.Ceiling = 1
		b.Warning = DurationTooShortWarning
		return b, nil
	}

	b.Ceiling = (targetSeconds + transitionSeconds) / (per + transitionSeconds)
	if b.Ceiling < 1 {
		b.Ceiling = 1
	}
	return b, nil
}

// Allowances returns the time allowance for each planned movement slot.
func (b Budget) Allowances() []int {
	out := make([]int, b.Ceiling)
	for i := range out {
		out[i] = b.PerMovement
	}
	return out
}

// Planned is the duration of a session that fills the ceiling exactly.
func (b Budget) Planned() int {
	if b.Ceiling == 0 {
		return 0
	}
	return b.Ceiling*b.PerMovement + (b.Ceiling-1)*b.TransitionSeconds
}
