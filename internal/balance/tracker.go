// Package balance tracks cumulative per-muscle-group load while a sequence is
// assembled and scores how evenly that load is spread.
package balance

import (
	"math"
	"sort"

	"github.com/claude/freeflow/internal/models"
)

// Tracker holds the muscle load state of one generation run. It is not safe
// for concurrent use; each run owns its own tracker.
type Tracker struct {
	loads map[string]int
	focus map[string]bool
}

// NewTracker returns an empty tracker. Focus tags, when given, break load ties
// in favour of movements that work a requested muscle group.
func NewTracker(focus ...string) *Tracker {
	t := &Tracker{loads: make(map[string]int)}
	if len(focus) > 0 {
		t.focus = make(map[string]bool, len(focus))
		for _, f := range focus {
			t.focus[f] = true
		}
	}
	return t
}

// Record adds one to the load of every muscle tag on m.
func (t *Tracker) Record(m models.Movement) {
	for _, tag := range m.Muscles {
		t.loads[tag]++
	}
}

// Load returns the cumulative count for tag.
func (t *Tracker) Load(tag string) int {
	return t.loads[tag]
}

// Loads returns a copy of the current load state.
func (t *Tracker) Loads() map[string]int {
	out := make(map[string]int, len(t.loads))
	for k, v := range t.loads {
		out[k] = v
	}
	return out
}

// peak is the highest load among m's tags.
func (t *Tracker) peak(m models.Movement) int {
	hi := 0
	for _, tag := range m.Muscles {
		if l := t.loads[tag]; l > hi {
			hi = l
		}
	}
	return hi
}

func (t *Tracker) coversFocus(m models.Movement) bool {
	for _, tag := range m.Muscles {
		if t.focus[tag] {
			return true
		}
	}
	return false
}

// Rank returns candidates sorted ascending by their peak muscle load. Ties go
// to focus-covering movements first, then to the lower catalog ID. The input
// slice is not modified.
func (t *Tracker) Rank(candidates []models.Movement) []models.Movement {
	out := make([]models.Movement, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := t.peak(out[i]), t.peak(out[j])
		if pi != pj {
			return pi < pj
		}
		if t.focus != nil {
			fi, fj := t.coversFocus(out[i]), t.coversFocus(out[j])
			if fi != fj {
				return fi
			}
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Score is 1 - stdev/mean of the loads of every touched tag, clamped to
// [0,1]. Fewer than two touched tags score 1.
func (t *Tracker) Score() float64 {
	return Score(t.loads)
}

// Score computes the balance score of a load map.
func Score(loads map[string]int) float64 {
	var vals []float64
	for _, v := range loads {
		if v > 0 {
			vals = append(vals, float64(v))
		}
	}
	if len(vals) < 2 {
		return 1.0
	}

	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))

	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	stdev := math.Sqrt(sq / float64(len(vals)))

	score := 1 - stdev/mean
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

// Report summarizes the load state for callers.
type Report struct {
	Score       float64        `json:"score"`
	Loads       map[string]int `json:"loads"`
	LeastWorked []string       `json:"least_worked,omitempty"`
	MostWorked  []string       `json:"most_worked,omitempty"`
}

// Report returns the score plus the least- and most-loaded tags (sorted).
func (t *Tracker) Report() Report {
	r := Report{Score: t.Score(), Loads: t.Loads()}
	if len(t.loads) == 0 {
		return r
	}
	lo, hi := math.MaxInt, 0
	for _, v := range t.loads {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	for tag, v := range t.loads {
		if v == lo {
			r.LeastWorked = append(r.LeastWorked, tag)
		}
		if v == hi {
			r.MostWorked = append(r.MostWorked, tag)
		}
	}
	sort.Strings(r.LeastWorked)
	sort.Strings(r.MostWorked)
	return r
}

// Of builds a tracker over every movement in seq.
func Of(seq models.Sequence) *Tracker {
	t := NewTracker()
	for _, im := range seq.Movements() {
		t.Record(im.Movement)
	}
	return t
}
