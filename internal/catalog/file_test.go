package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/claude/freeflow/internal/models"
)

const sampleYAML = `movements:
  - id: breathing
    name: Breathing
    tier: 1
    pattern: neutral
    muscles: [core]
  - id: swan
    name: Swan
    tier: 2
    pattern: extension
    muscles: [back, glutes]
    prerequisites: [breathing]
  - id: mermaid
    name: Mermaid
    tier: 1
    pattern: lateral
    muscles: [shoulders]
    stretch: true
`

// TestDecode verifies a catalog document parses into movements.
func TestDecode(t *testing.T) {
	ms, err := Decode(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(ms) != 3 {
		t.Fatalf("got %d movements, want 3", len(ms))
	}
	if ms[1].Tier != models.Tier2 || ms[1].Prerequisites[0] != "breathing" {
		t.Errorf("swan = %+v", ms[1])
	}
	if !ms[2].Stretch {
		t.Error("mermaid not marked as stretch")
	}
}

// TestDecodeRejectsUnknownFields verifies typos in field names are errors.
func TestDecodeRejectsUnknownFields(t *testing.T) {
	doc := "movements:\n  - id: a\n    musles: [core]\n"
	if _, err := Decode(strings.NewReader(doc)); err == nil {
		t.Error("expected error for unknown field")
	}
}

// TestDecodeEmpty verifies an empty document is an empty catalog.
func TestDecodeEmpty(t *testing.T) {
	ms, err := Decode(strings.NewReader(""))
	if err != nil || len(ms) != 0 {
		t.Errorf("Decode(\"\") = %v, %v", ms, err)
	}
}

// TestEncodeRoundTrip verifies Encode output decodes to the same catalog.
func TestEncodeRoundTrip(t *testing.T) {
	ms, _ := Decode(strings.NewReader(sampleYAML))
	var buf bytes.Buffer
	if err := Encode(&buf, ms); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	a, _ := NewSnapshot(ms, 0)
	b, _ := NewSnapshot(again, 0)
	if a.Version() != b.Version() {
		t.Error("round trip changed catalog")
	}
}

// TestLoadFile verifies file loading and the error for a missing file.
func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	ms, err := FileSource{Path: path}.LoadMovements(t.Context())
	if err != nil || len(ms) != 3 {
		t.Fatalf("LoadMovements = %d, %v", len(ms), err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
