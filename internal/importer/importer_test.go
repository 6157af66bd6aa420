package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/claude/freeflow/internal/budget"
	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/models"
	"github.com/claude/freeflow/internal/storage"
)

// fakeStore keeps movements and import logs in memory and counts upserts.
type fakeStore struct {
	movements map[string]models.Movement
	upserts   int
	logs      []storage.ImportLog
}

func newFakeStore(ms ...models.Movement) *fakeStore {
	f := &fakeStore{movements: make(map[string]models.Movement)}
	for _, m := range ms {
		f.movements[m.ID] = m
	}
	return f
}

func (f *fakeStore) LoadMovements(context.Context) ([]models.Movement, error) {
	out := make([]models.Movement, 0, len(f.movements))
	for _, m := range f.movements {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) UpsertMovements(_ context.Context, ms []models.Movement) (int64, error) {
	f.upserts++
	for _, m := range ms {
		f.movements[m.ID] = m
	}
	return int64(len(ms)), nil
}

func (f *fakeStore) InsertImportLog(_ context.Context, l storage.ImportLog) (int64, error) {
	f.logs = append(f.logs, l)
	return int64(len(f.logs)), nil
}

func (f *fakeStore) UpdateImportLog(_ context.Context, id int64, l storage.ImportLog) error {
	l.Source = f.logs[id-1].Source
	f.logs[id-1] = l
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const warmupsYAML = `movements:
  - id: breathing
    name: Breathing
    tier: 1
    pattern: neutral
    muscles: [core]
  - id: cat-stretch
    name: Cat Stretch
    tier: beginner
    pattern: flexion
    muscles: [back]
    stretch: true
`

const advancedYAML = `movements:
  - id: swan
    name: Swan
    tier: 2
    pattern: extension
    muscles: [back, glutes]
    prerequisites: [breathing]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestImportDirectory verifies nested YAML files are merged, validated and
// upserted, and that other files are ignored.
func TestImportDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "warmups.yaml", warmupsYAML)
	writeFile(t, dir, "tier2/advanced.yml", advancedYAML)
	writeFile(t, dir, "README.md", "not a catalog")

	store := newFakeStore()
	stats, err := New(store, nil, testLogger(), false).Import(context.Background(), dir)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.FilesProcessed != 2 || stats.MovementsUpserted != 3 || stats.CatalogSize != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.CatalogVersion == "" {
		t.Error("no catalog version")
	}
	if _, ok := store.movements["swan"]; !ok {
		t.Error("swan not stored")
	}
	if len(store.logs) != 1 || store.logs[0].Status != storage.ImportSuccess || store.logs[0].MovementsUpserted != 3 {
		t.Errorf("import logs = %+v", store.logs)
	}
	if store.logs[0].Source != dir || store.logs[0].CatalogVersion == nil {
		t.Errorf("import log = %+v", store.logs[0])
	}
}

// TestImportSkipsUnchanged verifies the state DB suppresses reimports until
// a file changes.
func TestImportSkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "catalog.yaml", warmupsYAML)

	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer state.Close()

	store := newFakeStore()
	if _, err := New(store, state, testLogger(), false).Import(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	stats, err := New(store, state, testLogger(), false).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 || store.upserts != 1 {
		t.Errorf("second run: skipped=%d upserts=%d, want 1 and 1", stats.FilesSkipped, store.upserts)
	}

	if err := os.WriteFile(path, []byte(warmupsYAML+advancedYAML[len("movements:\n"):]), 0o644); err != nil {
		t.Fatal(err)
	}
	stats, err = New(store, state, testLogger(), false).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesProcessed != 1 || stats.MovementsUpserted != 3 || store.upserts != 2 {
		t.Errorf("after change: stats = %+v, upserts = %d", stats, store.upserts)
	}
}

// TestImportPrerequisiteFromStore verifies prerequisites may name movements
// that are already stored.
func TestImportPrerequisiteFromStore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "advanced.yaml", advancedYAML)

	store := newFakeStore(models.Movement{ID: "breathing", Name: "Breathing", Tier: models.Tier1, Pattern: models.PatternNeutral, Muscles: []string{"core"}})
	stats, err := New(store, nil, testLogger(), false).Import(context.Background(), dir)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.CatalogSize != 2 || stats.MovementsUpserted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestImportRejectsInvalidCatalog verifies nothing is written when the merged
// catalog fails validation.
func TestImportRejectsInvalidCatalog(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"unknown prerequisite", map[string]string{"a.yaml": advancedYAML}, "unknown prerequisite"},
		{"duplicate across files", map[string]string{"a.yaml": warmupsYAML, "b.yaml": warmupsYAML}, "defined in both"},
		{"unknown muscle", map[string]string{"a.yaml": strings.Replace(warmupsYAML, "[core]", "[tail]", 1)}, "tail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			store := newFakeStore()
			_, err := New(store, nil, testLogger(), false).Import(context.Background(), dir)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want containing %q", err, tt.want)
			}
			if store.upserts != 0 {
				t.Errorf("upserts = %d, want 0", store.upserts)
			}
			if len(store.logs) != 1 || store.logs[0].Status != storage.ImportError || store.logs[0].ErrorMessage == nil {
				t.Errorf("import logs = %+v", store.logs)
			}
		})
	}
}

// TestImportChecks verifies a catalog failing a configured check is not written.
func TestImportChecks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", strings.Replace(warmupsYAML, "tier: 1", "tier: 4", 1))

	store := newFakeStore()
	times := budget.DefaultTeachingTimes()
	_, err := New(store, nil, testLogger(), false).WithChecks(catalog.RequireTiers(times.Has)).Import(context.Background(), dir)
	if err == nil || !strings.Contains(err.Error(), "tier 4 has no teaching time") {
		t.Fatalf("err = %v, want tier 4 rejection", err)
	}
	if store.upserts != 0 {
		t.Errorf("upserts = %d, want 0", store.upserts)
	}
}

// TestImportBadFileCounted verifies unparseable files are counted and skipped.
func TestImportBadFileCounted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.yaml", warmupsYAML)
	writeFile(t, dir, "bad.yaml", "movements:\n  - id: x\n    colour: red\n")

	store := newFakeStore()
	stats, err := New(store, nil, testLogger(), false).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 1 || stats.FilesProcessed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

// TestImportDryRun verifies validation runs without writing.
func TestImportDryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "catalog.yaml", warmupsYAML)

	store := newFakeStore()
	stats, err := New(store, nil, testLogger(), true).Import(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if store.upserts != 0 || stats.CatalogSize != 2 {
		t.Errorf("upserts = %d, stats = %+v", store.upserts, stats)
	}
	if len(store.logs) != 0 {
		t.Errorf("dry run wrote %d import logs", len(store.logs))
	}
}

// TestHashFile verifies identical content hashes identically.
func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", warmupsYAML)
	b := writeFile(t, dir, "b.yaml", warmupsYAML)
	c := writeFile(t, dir, "c.yaml", advancedYAML)

	ha, _ := HashFile(a)
	hb, _ := HashFile(b)
	hc, _ := HashFile(c)
	if ha != hb || ha == hc || len(ha) != 64 {
		t.Errorf("hashes = %s %s %s", ha, hb, hc)
	}
}
