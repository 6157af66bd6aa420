// Package importer loads YAML catalog files from a directory into the
// movements table.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/models"
	"github.com/claude/freeflow/internal/storage"
)

// Store reads and writes catalog rows and records import runs.
// *storage.DB satisfies it.
type Store interface {
	LoadMovements(ctx context.Context) ([]models.Movement, error)
	UpsertMovements(ctx context.Context, movements []models.Movement) (int64, error)
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log storage.ImportLog) error
}

var _ Store = (*storage.DB)(nil)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	MovementsRead     int
	MovementsUpserted int64
	CatalogSize       int
	CatalogVersion    string
}

// Importer reads catalog files and upserts their movements.
type Importer struct {
	db     Store
	state  *StateDB
	log    *slog.Logger
	dryRun bool
	checks []catalog.Check
	stats  Stats
}

// New creates a new Importer. state may be nil, in which case every file is
// imported on every run.
func New(db Store, state *StateDB, log *slog.Logger, dryRun bool) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{db: db, state: state, log: log, dryRun: dryRun}
}

// WithChecks adds checks the merged catalog must pass before it is written.
func (imp *Importer) WithChecks(checks ...catalog.Check) *Importer {
	imp.checks = append(imp.checks, checks...)
	return imp
}

type pendingFile struct {
	rel       string
	size      int64
	hash      string
	movements []models.Movement
}

// Import processes all .yaml and .yml files under dir and records the run in
// the import log. Dry runs are not logged.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	if imp.dryRun {
		return imp.importDir(ctx, dir)
	}

	start := time.Now()
	logID, err := imp.db.InsertImportLog(ctx, storage.ImportLog{Source: dir, Status: storage.ImportRunning})
	if err != nil {
		imp.log.Warn("failed to create import log", "error", err)
	}

	stats, importErr := imp.importDir(ctx, dir)

	if logID > 0 {
		entry := storage.ImportLog{
			Status:            storage.ImportSuccess,
			FilesProcessed:    stats.FilesProcessed,
			FilesSkipped:      stats.FilesSkipped,
			FilesErrored:      stats.FilesErrored,
			MovementsRead:     stats.MovementsRead,
			MovementsUpserted: stats.MovementsUpserted,
		}
		if stats.CatalogVersion != "" {
			v := stats.CatalogVersion
			entry.CatalogVersion = &v
		}
		ms := int(time.Since(start).Milliseconds())
		entry.DurationMs = &ms
		if importErr != nil {
			entry.Status = storage.ImportError
			msg := importErr.Error()
			entry.ErrorMessage = &msg
		}
		if err := imp.db.UpdateImportLog(context.WithoutCancel(ctx), logID, entry); err != nil {
			imp.log.Warn("failed to update import log", "error", err)
		}
	}
	return stats, importErr
}

// importDir does the work of Import. The merged catalog (stored movements
// overridden by the files) must pass catalog validation before anything is
// written.
func (imp *Importer) importDir(ctx context.Context, dir string) (*Stats, error) {
	paths, err := catalogFiles(dir)
	if err != nil {
		return &imp.stats, err
	}

	var pending []pendingFile
	seen := make(map[string]string)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}
		f, skip, err := imp.readFile(dir, path)
		if err != nil {
			imp.log.Warn("catalog file failed", "file", path, "error", err)
			imp.stats.FilesErrored++
			continue
		}
		if skip {
			imp.stats.FilesSkipped++
			continue
		}
		for _, m := range f.movements {
			if prev, dup := seen[m.ID]; dup {
				return &imp.stats, fmt.Errorf("movement %q defined in both %s and %s", m.ID, prev, f.rel)
			}
			seen[m.ID] = f.rel
		}
		imp.stats.MovementsRead += len(f.movements)
		pending = append(pending, f)
	}

	if len(pending) == 0 {
		imp.log.Info("no catalog changes", "dir", dir, "skipped", imp.stats.FilesSkipped)
		return &imp.stats, nil
	}

	incoming := make([]models.Movement, 0, imp.stats.MovementsRead)
	for _, f := range pending {
		incoming = append(incoming, f.movements...)
	}
	snap, err := imp.validate(ctx, incoming)
	if err != nil {
		return &imp.stats, err
	}
	imp.stats.CatalogSize = snap.Len()
	imp.stats.CatalogVersion = snap.Version()

	if imp.dryRun {
		imp.stats.FilesProcessed = len(pending)
		return &imp.stats, nil
	}

	upserted, err := imp.db.UpsertMovements(ctx, incoming)
	if err != nil {
		return &imp.stats, fmt.Errorf("upserting movements: %w", err)
	}
	imp.stats.MovementsUpserted = upserted

	for _, f := range pending {
		imp.stats.FilesProcessed++
		if imp.state == nil {
			continue
		}
		if err := imp.state.MarkImported(f.rel, f.size, f.hash, len(f.movements)); err != nil {
			imp.log.Warn("recording import state", "file", f.rel, "error", err)
		}
	}
	return &imp.stats, nil
}

// readFile hashes and parses one file. skip is true when the state DB has
// already seen identical content.
func (imp *Importer) readFile(dir, path string) (pendingFile, bool, error) {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		rel = path
	}
	f := pendingFile{rel: rel}

	info, err := os.Stat(path)
	if err != nil {
		return f, false, err
	}
	f.size = info.Size()
	if f.hash, err = HashFile(path); err != nil {
		return f, false, fmt.Errorf("hashing: %w", err)
	}

	if imp.state != nil {
		done, err := imp.state.IsImported(rel, f.size, f.hash)
		if err != nil {
			return f, false, fmt.Errorf("checking import state: %w", err)
		}
		if done {
			imp.log.Debug("skipping unchanged catalog file", "file", rel)
			return f, true, nil
		}
	}

	if f.movements, err = catalog.LoadFile(path); err != nil {
		return f, false, err
	}
	return f, false, nil
}

// validate builds a snapshot of the stored catalog merged with incoming so
// prerequisites may refer to movements imported earlier.
func (imp *Importer) validate(ctx context.Context, incoming []models.Movement) (*catalog.Snapshot, error) {
	existing, err := imp.db.LoadMovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stored catalog: %w", err)
	}

	merged := make(map[string]models.Movement, len(existing)+len(incoming))
	for _, m := range existing {
		merged[m.ID] = m
	}
	for _, m := range incoming {
		merged[m.ID] = m
	}
	all := make([]models.Movement, 0, len(merged))
	for _, m := range merged {
		all = append(all, m)
	}

	snap, err := catalog.NewSnapshot(all, 0)
	if err != nil {
		return nil, fmt.Errorf("catalog validation: %w", err)
	}
	for _, check := range imp.checks {
		if err := check(snap); err != nil {
			return nil, fmt.Errorf("catalog validation: %w", err)
		}
	}
	return snap, nil
}

func catalogFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
