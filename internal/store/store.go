package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Store defines the interface for run persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Return descriptive errors for I/O, serialization, or validation failures
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun validates and saves a run record. An existing record with the
	// same runID is overwritten.
	SaveRun(ctx context.Context, runID string, record *RunRecord) error

	// LoadRun retrieves the record for the given run.
	// Returns ErrNotFound if no record exists for this runID.
	LoadRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns returns metadata for all stored runs, oldest first.
	// The returned slice may be empty if no runs exist.
	ListRuns(ctx context.Context) ([]RunInfo, error)

	// DeleteRun removes the record and any artifacts stored with it.
	// Returns ErrNotFound if no record exists for this runID.
	DeleteRun(ctx context.Context, runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run error.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewStore opens a backend by kind: "fs" (JSON files under dataDir) or
// "sqlite" (runs.db under dataDir).
func NewStore(ctx context.Context, kind, dataDir string) (Store, error) {
	switch kind {
	case "", "fs":
		return NewFSStore(dataDir)
	case "sqlite":
		return NewSQLiteStore(ctx, filepath.Join(dataDir, "runs.db"))
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported closes backends holding resources.
func CloseIfSupported(s Store) error {
	closer, ok := s.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
