package storage

import (
	"context"
	"fmt"
	"time"
)

// Import run outcomes.
const (
	ImportRunning = "running"
	ImportSuccess = "success"
	ImportError   = "error"
)

// ImportLog represents a single catalog import run.
type ImportLog struct {
	ID                int64     `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Source            string    `json:"source"`
	Status            string    `json:"status"`
	FilesProcessed    int       `json:"files_processed"`
	FilesSkipped      int       `json:"files_skipped"`
	FilesErrored      int       `json:"files_errored"`
	MovementsRead     int       `json:"movements_read"`
	MovementsUpserted int64     `json:"movements_upserted"`
	CatalogVersion    *string   `json:"catalog_version"`
	DurationMs        *int      `json:"duration_ms"`
	ErrorMessage      *string   `json:"error_message"`
}

// InsertImportLog creates a new import log entry and returns its ID.
func (db *DB) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO import_logs (source, status, files_processed, files_skipped, files_errored,
		 movements_read, movements_upserted, catalog_version, duration_ms, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING id`,
		log.Source, log.Status, log.FilesProcessed, log.FilesSkipped, log.FilesErrored,
		log.MovementsRead, log.MovementsUpserted, log.CatalogVersion, log.DurationMs, log.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// UpdateImportLog updates an existing import log entry (typically from "running" to "success" or "error").
func (db *DB) UpdateImportLog(ctx context.Context, id int64, log ImportLog) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE import_logs SET
		 status = $2, files_processed = $3, files_skipped = $4, files_errored = $5,
		 movements_read = $6, movements_upserted = $7, catalog_version = $8,
		 duration_ms = $9, error_message = $10
		 WHERE id = $1`,
		id, log.Status, log.FilesProcessed, log.FilesSkipped, log.FilesErrored,
		log.MovementsRead, log.MovementsUpserted, log.CatalogVersion,
		log.DurationMs, log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("updating import log %d: %w", id, err)
	}
	return nil
}

// QueryImportLogs returns the most recent import logs.
func (db *DB) QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, created_at, source, status, files_processed, files_skipped, files_errored,
		 movements_read, movements_upserted, catalog_version, duration_ms, error_message
		 FROM import_logs
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []ImportLog
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.CreatedAt, &l.Source, &l.Status,
			&l.FilesProcessed, &l.FilesSkipped, &l.FilesErrored, &l.MovementsRead,
			&l.MovementsUpserted, &l.CatalogVersion, &l.DurationMs, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
