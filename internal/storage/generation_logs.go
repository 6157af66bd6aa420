package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generation outcomes.
const (
	GenerationAccepted = "accepted"
	GenerationFailed   = "failed"
	GenerationError    = "error"
)

// GenerationLog records one generation request and its outcome.
type GenerationLog struct {
	ID              int64      `json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	Status          string     `json:"status"`
	Rule            *string    `json:"rule"`
	Tier            int        `json:"tier"`
	DurationSeconds int        `json:"duration_seconds"`
	MovementCount   int        `json:"movement_count"`
	DurationMs      int        `json:"duration_ms"`
	SequenceID      *uuid.UUID `json:"sequence_id"`
	ErrorMessage    *string    `json:"error_message"`
}

// InsertGenerationLog creates a log entry and returns its ID.
func (db *DB) InsertGenerationLog(ctx context.Context, log GenerationLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO generation_logs (status, rule, tier, duration_seconds, movement_count, duration_ms, sequence_id, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING id`,
		log.Status, log.Rule, log.Tier, log.DurationSeconds, log.MovementCount,
		log.DurationMs, log.SequenceID, log.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting generation log: %w", err)
	}
	return id, nil
}

// QueryGenerationLogs returns the most recent generation logs.
func (db *DB) QueryGenerationLogs(ctx context.Context, limit int) ([]GenerationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, created_at, status, rule, tier, duration_seconds, movement_count, duration_ms, sequence_id, error_message
		 FROM generation_logs
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying generation logs: %w", err)
	}
	defer rows.Close()

	var result []GenerationLog
	for rows.Next() {
		var l GenerationLog
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.Status, &l.Rule, &l.Tier, &l.DurationSeconds,
			&l.MovementCount, &l.DurationMs, &l.SequenceID, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning generation log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
