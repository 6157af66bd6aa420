package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/freeflow/internal/models"
)

// SavedSequence is a generated sequence persisted for later retrieval.
type SavedSequence struct {
	ID              uuid.UUID       `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	DurationSeconds int             `json:"duration_seconds"`
	Tier            int             `json:"tier"`
	Focus           []string        `json:"focus"`
	BalanceScore    float64         `json:"balance_score"`
	Valid           bool            `json:"valid"`
	VerdictRule     *string         `json:"verdict_rule,omitempty"`
	CatalogVersion  string          `json:"catalog_version"`
	Sequence        models.Sequence `json:"sequence"`
}

// InsertSequence stores s, assigning a new ID when s.ID is zero.
func (db *DB) InsertSequence(ctx context.Context, s SavedSequence) (uuid.UUID, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	entries, err := json.Marshal(s.Sequence.Entries)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encoding sequence entries: %w", err)
	}
	focus := s.Focus
	if focus == nil {
		focus = []string{}
	}

	_, err = db.Pool.Exec(ctx,
		`INSERT INTO sequences (id, duration_seconds, tier, focus, balance_score, valid, verdict_rule, catalog_version, entries)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.ID, s.DurationSeconds, s.Tier, focus, s.BalanceScore, s.Valid, s.VerdictRule, s.CatalogVersion, entries)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting sequence: %w", err)
	}
	return s.ID, nil
}

// GetSequence returns a saved sequence, or ErrNotFound.
func (db *DB) GetSequence(ctx context.Context, id uuid.UUID) (*SavedSequence, error) {
	var (
		s       SavedSequence
		entries []byte
	)
	err := db.Pool.QueryRow(ctx,
		`SELECT id, created_at, duration_seconds, tier, focus, balance_score, valid, verdict_rule, catalog_version, entries
		 FROM sequences WHERE id = $1`, id,
	).Scan(&s.ID, &s.CreatedAt, &s.DurationSeconds, &s.Tier, &s.Focus, &s.BalanceScore,
		&s.Valid, &s.VerdictRule, &s.CatalogVersion, &entries)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying sequence %s: %w", id, err)
	}
	if err := json.Unmarshal(entries, &s.Sequence.Entries); err != nil {
		return nil, fmt.Errorf("decoding sequence %s entries: %w", id, err)
	}
	return &s, nil
}
