package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// replaceFile swaps in new content the way editors save: write then rename.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

// TestWatcherReloadsOnWrite verifies edits to the catalog file install a new
// snapshot and that a broken edit keeps the old one.
func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte("movements: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	initial, err := NewSnapshot(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	st := NewStore(initial)

	w, err := NewWatcher(path, st, 0, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond
	results := make(chan error, 16)
	w.OnReload(func(_ *Snapshot, err error) { results <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	replaceFile(t, path, sampleYAML)
	deadline := time.After(5 * time.Second)
	for st.Current().Len() != 3 {
		select {
		case <-results:
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
	good := st.Current()

	replaceFile(t, path, "movements: [\n")
	deadline = time.After(5 * time.Second)
	for failed := false; !failed; {
		select {
		case err := <-results:
			failed = err != nil
		case <-deadline:
			t.Fatal("timed out waiting for failed reload")
		}
	}
	if st.Current() != good {
		t.Error("broken file replaced the snapshot")
	}
}
