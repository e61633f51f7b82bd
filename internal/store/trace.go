package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one line of a run's convergence trace (trace.jsonl).
type TraceEntry struct {
	// Generation is 0 for the initialization snapshot
	Generation int `json:"generation"`

	// BestFitness is the global best after this generation
	BestFitness float64 `json:"bestFitness"`

	// Evaluations counts generation-loop objective calls so far
	Evaluations int `json:"evaluations"`

	Timestamp time.Time `json:"timestamp"`

	// BestPosition is optional; omitted to keep long traces small
	BestPosition []float64 `json:"bestPosition,omitempty"`
}

// TracePath returns <baseDir>/runs/<runID>/trace.jsonl.
func TracePath(baseDir, runID string) string {
	return filepath.Join(runDir(baseDir, runID), "trace.jsonl")
}

// TraceWriter appends JSONL entries through a 64KB buffer. Safe for
// concurrent use.
type TraceWriter struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	enc     *json.Encoder
	path    string
	written int
	closed  bool
}

// NewTraceWriter creates the trace file of a run under baseDir. With append
// set, existing entries are kept.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	if err := os.MkdirAll(runDir(baseDir, runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return CreateTrace(TracePath(baseDir, runID), append)
}

// CreateTrace opens a trace writer on an arbitrary path.
func CreateTrace(path string, append bool) (*TraceWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(file, 64*1024)
	return &TraceWriter{
		file: file,
		buf:  buf,
		enc:  json.NewEncoder(buf),
		path: path,
	}, nil
}

// Write buffers one entry. Non-finite fitness values are rejected by the
// JSON encoder and leave the file untouched.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return errors.New("trace writer is closed")
	}
	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode trace entry: %w", err)
	}
	tw.written++
	return nil
}

// Flush pushes buffered entries to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Calling it again is a no-op.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return nil
	}
	tw.closed = true

	flushErr := tw.buf.Flush()
	closeErr := tw.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush on close: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace file: %w", closeErr)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// Written reports how many entries were accepted.
func (tw *TraceWriter) Written() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.written
}

// TraceReader decodes entries from a JSONL trace.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
}

// NewTraceReader opens the trace of the given run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	return OpenTrace(TracePath(baseDir, runID))
}

// OpenTrace opens a trace file by path. A missing file is a *NotFoundError.
func OpenTrace(path string) (*TraceReader, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{RunID: path}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err == io.EOF {
		return nil, io.EOF
	} else if err != nil {
		return nil, fmt.Errorf("failed to decode trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll returns the remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the underlying file.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace of a run; a missing trace is not an error.
func DeleteTrace(baseDir, runID string) error {
	err := os.Remove(TracePath(baseDir, runID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
