package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps run records in a single SQLite database. The summary
// columns serve ListRuns; the full record lives in the JSON payload.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer at a time avoids SQLITE_BUSY under concurrent saves
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{path: path, db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			objective TEXT NOT NULL,
			dim INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			evaluations INTEGER NOT NULL,
			generations INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, runID string, record *RunRecord) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize run: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, objective, dim, best_fitness, evaluations, generations, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			objective = excluded.objective,
			dim = excluded.dim,
			best_fitness = excluded.best_fitness,
			evaluations = excluded.evaluations,
			generations = excluded.generations,
			created_at = excluded.created_at,
			payload = excluded.payload
	`, runID, record.Config.Objective, record.Config.Dim, record.BestFitness,
		record.Evaluations, record.Generations, record.Timestamp.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", runID, err)
	}

	slog.Debug("Run saved", "runID", runID, "db", s.path)
	return nil
}

func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	var record RunRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &record, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT payload FROM runs ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	infos := []RunInfo{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record RunRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			slog.Warn("Failed to decode run for listing", "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	db, err := s.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{RunID: runID}
	}

	slog.Debug("Run deleted", "runID", runID, "db", s.path)
	return nil
}

// Close releases the database handle. Further calls fail.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite store is closed")
	}
	return s.db, nil
}
