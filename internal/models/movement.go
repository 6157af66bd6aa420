package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier is an ordered difficulty level. Lower values are easier.
type Tier int

const (
	Tier1 Tier = 1 // beginner
	Tier2 Tier = 2 // intermediate
	Tier3 Tier = 3 // advanced
)

// LowestTier is the tier a session may always open with.
const LowestTier = Tier1

// tierNames maps lowercased tier spellings to their tier.
var tierNames = map[string]Tier{
	"1":            Tier1,
	"tier1":        Tier1,
	"beginner":     Tier1,
	"2":            Tier2,
	"tier2":        Tier2,
	"intermediate": Tier2,
	"3":            Tier3,
	"tier3":        Tier3,
	"advanced":     Tier3,
}

// ParseTier accepts "1", "tier1" or "beginner" style spellings (case-insensitive).
// Unknown spellings return an error; whether a parsed tier is configured is
// decided by the budget calculator, not here.
func ParseTier(s string) (Tier, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "")
	if t, ok := tierNames[key]; ok {
		return t, nil
	}
	if n, err := strconv.Atoi(key); err == nil {
		return Tier(n), nil
	}
	return 0, fmt.Errorf("unrecognized tier %q", s)
}

func (t Tier) String() string {
	return "Tier" + strconv.Itoa(int(t))
}

// UnmarshalJSON accepts a number or any spelling ParseTier understands.
func (t *Tier) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*t = Tier(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("tier must be a number or a name: %s", b)
	}
	v, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// UnmarshalYAML lets catalog files write "tier: beginner" as well as "tier: 1".
func (t *Tier) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseTier(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = v
	return nil
}

// Pattern is the anatomical movement category of a movement.
type Pattern string

const (
	PatternFlexion   Pattern = "flexion"
	PatternExtension Pattern = "extension"
	PatternRotation  Pattern = "rotation"
	PatternLateral   Pattern = "lateral"
	PatternBalance   Pattern = "balance"
	PatternNeutral   Pattern = "neutral" // neutral / warm-up
)

var patternNames = map[string]Pattern{
	"flexion":         PatternFlexion,
	"extension":       PatternExtension,
	"rotation":        PatternRotation,
	"lateral":         PatternLateral,
	"lateral flexion": PatternLateral,
	"side bend":       PatternLateral,
	"balance":         PatternBalance,
	"neutral":         PatternNeutral,
	"warm-up":         PatternNeutral,
	"warmup":          PatternNeutral,
	"neutral/warm-up": PatternNeutral,
}

// ParsePattern normalizes a pattern class name. Lookup is case-insensitive.
func ParsePattern(s string) (Pattern, error) {
	if p, ok := patternNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unrecognized pattern class %q", s)
}

// Canonical muscle-group tags. Movements may only carry tags from this set.
const (
	MuscleCore      = "core"
	MuscleBack      = "back"
	MuscleLegs      = "legs"
	MuscleGlutes    = "glutes"
	MuscleHips      = "hips"
	MuscleShoulders = "shoulders"
	MuscleArms      = "arms"
	MuscleChest     = "chest"
)

// muscleMap maps lowercased tag spellings to canonical tags.
var muscleMap = map[string]string{
	"core":        MuscleCore,
	"abs":         MuscleCore,
	"abdominals":  MuscleCore,
	"obliques":    MuscleCore,
	"back":        MuscleBack,
	"spine":       MuscleBack,
	"legs":        MuscleLegs,
	"quads":       MuscleLegs,
	"hamstrings":  MuscleLegs,
	"glutes":      MuscleGlutes,
	"hips":        MuscleHips,
	"hip flexors": MuscleHips,
	"shoulders":   MuscleShoulders,
	"arms":        MuscleArms,
	"triceps":     MuscleArms,
	"biceps":      MuscleArms,
	"chest":       MuscleChest,
}

// NormalizeMuscle maps a muscle tag to its canonical name. Unknown tags are
// returned trimmed with known=false so callers can reject or log them.
func NormalizeMuscle(tag string) (canonical string, known bool) {
	key := strings.ToLower(strings.TrimSpace(tag))
	if c, ok := muscleMap[key]; ok {
		return c, true
	}
	return strings.TrimSpace(tag), false
}

// Movement is a catalog entry. Movements are never mutated once loaded.
type Movement struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Tier          Tier     `json:"tier" yaml:"tier"`
	Pattern       Pattern  `json:"pattern" yaml:"pattern"`
	Muscles       []string `json:"muscles" yaml:"muscles"`
	Prerequisites []string `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	// Stretch marks a stretch/recovery movement that may close a session
	// regardless of its pattern class.
	Stretch bool `json:"stretch,omitempty" yaml:"stretch,omitempty"`
}

// HasMuscle reports whether the movement carries the given tag.
func (m Movement) HasMuscle(tag string) bool {
	for _, t := range m.Muscles {
		if t == tag {
			return true
		}
	}
	return false
}

// IsWarmup reports whether the movement may open a session.
func (m Movement) IsWarmup() bool {
	return m.Pattern == PatternNeutral || m.Tier == LowestTier
}

// IsCooldown reports whether the movement may close a session.
func (m Movement) IsCooldown() bool {
	return m.Pattern == PatternNeutral || m.Pattern == PatternLateral || m.Stretch
}

// Normalize returns a copy with canonical muscle tags (deduplicated and
// sorted) and a canonical pattern. It fails on unknown tags or patterns.
func (m Movement) Normalize() (Movement, error) {
	if strings.TrimSpace(m.ID) == "" {
		return Movement{}, fmt.Errorf("movement %q: id is required", m.Name)
	}
	if m.Tier < LowestTier {
		return Movement{}, fmt.Errorf("movement %s: tier must be %d or higher, got %d", m.ID, int(LowestTier), int(m.Tier))
	}
	p, err := ParsePattern(string(m.Pattern))
	if err != nil {
		return Movement{}, fmt.Errorf("movement %s: %w", m.ID, err)
	}
	if len(m.Muscles) == 0 {
		return Movement{}, fmt.Errorf("movement %s: at least one muscle group is required", m.ID)
	}
	seen := make(map[string]bool, len(m.Muscles))
	muscles := make([]string, 0, len(m.Muscles))
	for _, tag := range m.Muscles {
		c, known := NormalizeMuscle(tag)
		if !known {
			return Movement{}, fmt.Errorf("movement %s: unknown muscle group %q", m.ID, tag)
		}
		if !seen[c] {
			seen[c] = true
			muscles = append(muscles, c)
		}
	}
	sort.Strings(muscles)

	out := m
	out.ID = strings.TrimSpace(m.ID)
	out.Pattern = p
	out.Muscles = muscles
	out.Prerequisites = append([]string(nil), m.Prerequisites...)
	return out, nil
}
