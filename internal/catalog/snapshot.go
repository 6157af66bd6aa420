// Package catalog provides the read-only movement catalog the engine plans
// against: immutable snapshots, an atomically swapped current snapshot, and
// loaders for YAML files and other sources.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/claude/freeflow/internal/models"
)

// DefaultCacheSize bounds the number of memoized filter results per snapshot.
const DefaultCacheSize = 256

// Filter selects movements. Zero fields match everything.
type Filter struct {
	MaxTier models.Tier    `json:"max_tier,omitempty"`
	Pattern models.Pattern `json:"pattern,omitempty"`
	// Muscles matches movements carrying any of the listed tags.
	Muscles []string `json:"muscles,omitempty"`
}

func (f Filter) key() string {
	muscles := append([]string(nil), f.Muscles...)
	sort.Strings(muscles)
	return fmt.Sprintf("%d|%s|%s", int(f.MaxTier), f.Pattern, strings.Join(muscles, ","))
}

func (f Filter) matches(m models.Movement) bool {
	if f.MaxTier > 0 && m.Tier > f.MaxTier {
		return false
	}
	if f.Pattern != "" && m.Pattern != f.Pattern {
		return false
	}
	if len(f.Muscles) == 0 {
		return true
	}
	for _, tag := range f.Muscles {
		if m.HasMuscle(tag) {
			return true
		}
	}
	return false
}

// View is the read-only catalog collaborator used by the generator.
type View interface {
	ListMovements(f Filter) []models.Movement
	Get(id string) (models.Movement, bool)
}

// Snapshot is an immutable view of the catalog. It is safe for concurrent use.
type Snapshot struct {
	movements []models.Movement
	byID      map[string]models.Movement
	version   string
	loadedAt  time.Time
	cache     *lru.Cache[string, []models.Movement]
}

var _ View = (*Snapshot)(nil)

// NewSnapshot normalizes and indexes movements. Duplicate IDs and
// prerequisites naming unknown movements are rejected.
func NewSnapshot(movements []models.Movement, cacheSize int) (*Snapshot, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []models.Movement](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating filter cache: %w", err)
	}

	s := &Snapshot{
		movements: make([]models.Movement, 0, len(movements)),
		byID:      make(map[string]models.Movement, len(movements)),
		loadedAt:  time.Now(),
		cache:     cache,
	}
	for _, m := range movements {
		n, err := m.Normalize()
		if err != nil {
			return nil, err
		}
		if _, dup := s.byID[n.ID]; dup {
			return nil, fmt.Errorf("duplicate movement id %q", n.ID)
		}
		s.byID[n.ID] = n
		s.movements = append(s.movements, n)
	}
	for _, m := range s.movements {
		for _, p := range m.Prerequisites {
			if _, ok := s.byID[p]; !ok {
				return nil, fmt.Errorf("movement %s: unknown prerequisite %q", m.ID, p)
			}
		}
	}
	sort.Slice(s.movements, func(i, j int) bool { return s.movements[i].ID < s.movements[j].ID })
	s.version = fingerprint(s.movements)
	return s, nil
}

// fingerprint hashes the identity-relevant fields of every movement.
func fingerprint(ms []models.Movement) string {
	h := sha256.New()
	for _, m := range ms {
		fmt.Fprintf(h, "%s|%s|%d|%s|%s|%s|%t\n", m.ID, m.Name, m.Tier, m.Pattern,
			strings.Join(m.Muscles, ","), strings.Join(m.Prerequisites, ","), m.Stretch)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ListMovements returns matching movements ordered by ID. The returned slice
// belongs to the caller.
func (s *Snapshot) ListMovements(f Filter) []models.Movement {
	k := f.key()
	if hit, ok := s.cache.Get(k); ok {
		return append([]models.Movement(nil), hit...)
	}
	var out []models.Movement
	for _, m := range s.movements {
		if f.matches(m) {
			out = append(out, m)
		}
	}
	s.cache.Add(k, out)
	return append([]models.Movement(nil), out...)
}

// Get looks up a movement by ID.
func (s *Snapshot) Get(id string) (models.Movement, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Len is the number of movements in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.movements)
}

// Version is a content fingerprint; equal catalogs share a version.
func (s *Snapshot) Version() string {
	return s.version
}

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

// Store holds the current snapshot. Readers take the pointer once per run so
// a concurrent refresh never changes the catalog under a running generation.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a store serving initial.
func NewStore(initial *Snapshot) *Store {
	st := &Store{}
	st.current.Store(initial)
	return st
}

// Current returns the snapshot in effect.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Swap installs next and returns the previous snapshot.
func (st *Store) Swap(next *Snapshot) *Snapshot {
	return st.current.Swap(next)
}

// Check vets a freshly built snapshot before it is installed.
type Check func(*Snapshot) error

// RequireTiers rejects snapshots holding a movement whose tier known does not
// accept.
func RequireTiers(known func(models.Tier) bool) Check {
	return func(s *Snapshot) error {
		for _, m := range s.movements {
			if !known(m.Tier) {
				return fmt.Errorf("movement %s: tier %d has no teaching time", m.ID, int(m.Tier))
			}
		}
		return nil
	}
}

// Source loads raw movement records from a backing store.
type Source interface {
	LoadMovements(ctx context.Context) ([]models.Movement, error)
}

// Reload builds a fresh snapshot from src, runs checks against it and installs
// it in st. A failed check leaves the current snapshot in place.
func Reload(ctx context.Context, src Source, st *Store, cacheSize int, checks ...Check) (*Snapshot, error) {
	movements, err := src.LoadMovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading movements: %w", err)
	}
	snap, err := NewSnapshot(movements, cacheSize)
	if err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}
	for _, check := range checks {
		if err := check(snap); err != nil {
			return nil, fmt.Errorf("checking snapshot: %w", err)
		}
	}
	st.Swap(snap)
	return snap, nil
}
