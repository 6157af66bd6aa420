package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/models"
)

var _ catalog.Source = (*DB)(nil)

// LoadMovements returns every catalog movement ordered by ID.
func (db *DB) LoadMovements(ctx context.Context) ([]models.Movement, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, tier, pattern, muscles, prerequisites, stretch
		 FROM movements
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying movements: %w", err)
	}
	defer rows.Close()

	var result []models.Movement
	for rows.Next() {
		var (
			m       models.Movement
			tier    int
			pattern string
		)
		if err := rows.Scan(&m.ID, &m.Name, &tier, &pattern, &m.Muscles, &m.Prerequisites, &m.Stretch); err != nil {
			return nil, fmt.Errorf("scanning movement: %w", err)
		}
		m.Tier = models.Tier(tier)
		m.Pattern = models.Pattern(pattern)
		result = append(result, m)
	}
	return result, rows.Err()
}

// UpsertMovements inserts or replaces movements by ID. Returns rows affected.
func (db *DB) UpsertMovements(ctx context.Context, movements []models.Movement) (int64, error) {
	if len(movements) == 0 {
		return 0, nil
	}

	query := `INSERT INTO movements (id, name, tier, pattern, muscles, prerequisites, stretch) VALUES `
	args := make([]any, 0, len(movements)*7)
	valueStrings := make([]string, 0, len(movements))

	for i, m := range movements {
		base := i * 7
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		prereqs := m.Prerequisites
		if prereqs == nil {
			prereqs = []string{}
		}
		args = append(args, m.ID, m.Name, int(m.Tier), string(m.Pattern), m.Muscles, prereqs, m.Stretch)
	}

	query += strings.Join(valueStrings, ",") + `
		ON CONFLICT (id) DO UPDATE SET
		 name = EXCLUDED.name, tier = EXCLUDED.tier, pattern = EXCLUDED.pattern,
		 muscles = EXCLUDED.muscles, prerequisites = EXCLUDED.prerequisites,
		 stretch = EXCLUDED.stretch, updated_at = now()`

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upserting movements: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountMovements returns the catalog size.
func (db *DB) CountMovements(ctx context.Context) (int, error) {
	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM movements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting movements: %w", err)
	}
	return n, nil
}

// LoadSnapshot builds an immutable catalog snapshot from the database.
func LoadSnapshot(ctx context.Context, db *DB, cacheSize int) (*catalog.Snapshot, error) {
	movements, err := db.LoadMovements(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.NewSnapshot(movements, cacheSize)
}
