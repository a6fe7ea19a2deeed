// Package db provides the SQLite history of retrieved traces.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
	path string
}

// TraceRecord is one retrieved trace with its derived timings.
type TraceRecord struct {
	ID           string
	Deployment   string
	QueryID      string
	Block        uint64
	Elapsed      time.Duration
	QueryTime    time.Duration
	OtherTime    time.Duration
	Inconsistent bool
	CreatedAt    time.Time
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:   db,
		path: dbPath,
	}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			deployment TEXT NOT NULL,
			query_id TEXT NOT NULL,
			block INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			query_ms INTEGER NOT NULL,
			other_ms INTEGER NOT NULL,
			inconsistent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_deployment ON traces(deployment, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// RecordTrace stores rec, filling in ID and CreatedAt when unset.
func (db *DB) RecordTrace(ctx context.Context, rec *TraceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO traces (id, deployment, query_id, block, elapsed_ms, query_ms, other_ms, inconsistent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Deployment, rec.QueryID, int64(rec.Block),
		rec.Elapsed.Milliseconds(), rec.QueryTime.Milliseconds(), rec.OtherTime.Milliseconds(),
		rec.Inconsistent, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record trace: %w", err)
	}
	return nil
}

// RecentTraces returns up to limit traces of deployment, newest first.
func (db *DB) RecentTraces(ctx context.Context, deployment string, limit int) ([]TraceRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, deployment, query_id, block, elapsed_ms, query_ms, other_ms, inconsistent, created_at
		FROM traces WHERE deployment = ? ORDER BY created_at DESC LIMIT ?`,
		deployment, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer rows.Close()

	var records []TraceRecord
	for rows.Next() {
		var (
			rec                       TraceRecord
			block                     int64
			elapsedMs, queryMs, other int64
		)
		if err := rows.Scan(&rec.ID, &rec.Deployment, &rec.QueryID, &block,
			&elapsedMs, &queryMs, &other, &rec.Inconsistent, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		rec.Block = uint64(block)
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		rec.QueryTime = time.Duration(queryMs) * time.Millisecond
		rec.OtherTime = time.Duration(other) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read traces: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
