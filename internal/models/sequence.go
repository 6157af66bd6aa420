package models

import "fmt"

// EntryKind distinguishes movements from synthetic transitions in a sequence.
type EntryKind string

const (
	KindMovement   EntryKind = "movement"
	KindTransition EntryKind = "transition"
)

// Transition is an engine-generated pause between two movements. It carries
// no safety semantics but counts toward the session duration.
type Transition struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// NewTransition builds the transition inserted between from and to.
func NewTransition(from, to Movement, seconds int) Transition {
	return Transition{
		From:    from.ID,
		To:      to.ID,
		Seconds: seconds,
		Label:   fmt.Sprintf("Transition from %s to %s", from.Name, to.Name),
	}
}

// Entry is one element of a sequence: exactly one of Movement or Transition is set.
type Entry struct {
	Kind       EntryKind   `json:"kind"`
	Seconds    int         `json:"seconds"`
	Movement   *Movement   `json:"movement,omitempty"`
	Transition *Transition `json:"transition,omitempty"`
}

// MovementEntry wraps a movement with its teaching time.
func MovementEntry(m Movement, seconds int) Entry {
	mv := m
	return Entry{Kind: KindMovement, Seconds: seconds, Movement: &mv}
}

// TransitionEntry wraps a transition.
func TransitionEntry(t Transition) Entry {
	tr := t
	return Entry{Kind: KindTransition, Seconds: t.Seconds, Transition: &tr}
}

// IsMovement reports whether the entry holds a movement.
func (e Entry) IsMovement() bool {
	return e.Kind == KindMovement && e.Movement != nil
}

// Sequence is an ordered list of movements and transitions.
type Sequence struct {
	Entries []Entry `json:"entries"`
}

// IndexedMovement is a movement together with its position in Sequence.Entries.
type IndexedMovement struct {
	Index    int
	Movement Movement
}

// Movements returns the movements of the sequence in order, with their entry indices.
func (s Sequence) Movements() []IndexedMovement {
	var out []IndexedMovement
	for i, e := range s.Entries {
		if e.IsMovement() {
			out = append(out, IndexedMovement{Index: i, Movement: *e.Movement})
		}
	}
	return out
}

// MovementCount returns the number of movement entries.
func (s Sequence) MovementCount() int {
	n := 0
	for _, e := range s.Entries {
		if e.IsMovement() {
			n++
		}
	}
	return n
}

// Duration is the sum of all entry durations in seconds.
func (s Sequence) Duration() int {
	total := 0
	for _, e := range s.Entries {
		total += e.Seconds
	}
	return total
}

// Clone returns a deep copy of the sequence entries.
func (s Sequence) Clone() Sequence {
	out := Sequence{Entries: make([]Entry, len(s.Entries))}
	for i, e := range s.Entries {
		out.Entries[i] = e
		if e.Movement != nil {
			mv := *e.Movement
			out.Entries[i].Movement = &mv
		}
		if e.Transition != nil {
			tr := *e.Transition
			out.Entries[i].Transition = &tr
		}
	}
	return out
}
