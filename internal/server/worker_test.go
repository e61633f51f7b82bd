package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/cwbudde/batopt/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallJob() JobConfig {
	config := store.DefaultJobConfig()
	config.Dim = 3
	config.PopSize = 10
	config.Iters = 50
	return config
}

func newTestServer(t *testing.T, st store.Store, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	s := NewServer(":0", st, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func TestRunJob_Success(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.jobManager.CreateJob(smallJob(), nil)

	if err := s.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := s.jobManager.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if len(updated.BestPosition) != 3 {
		t.Errorf("Expected 3 coordinates, got %d", len(updated.BestPosition))
	}
	if updated.Evaluations != 500 {
		t.Errorf("Expected 500 evaluations, got %d", updated.Evaluations)
	}
	if updated.Generations != 50 {
		t.Errorf("Expected 50 generations, got %d", updated.Generations)
	}
	if updated.BestFitness > updated.InitialFitness {
		t.Errorf("Best fitness %v worse than initial %v", updated.BestFitness, updated.InitialFitness)
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
}

func TestRunJob_SavesRecord(t *testing.T) {
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	s := newTestServer(t, st)
	job := s.jobManager.CreateJob(smallJob(), nil)

	if err := s.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	rec, err := st.LoadRun(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Run record not saved: %v", err)
	}
	updated, _ := s.jobManager.GetJob(job.ID)
	if rec.BestFitness != float64(updated.BestFitness) {
		t.Errorf("Record fitness %v, job fitness %v", rec.BestFitness, updated.BestFitness)
	}
	if rec.Config.Dim != 3 {
		t.Errorf("Record config dim = %d", rec.Config.Dim)
	}
}

func TestRunJob_WritesTrace(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, nil, WithTraceDir(dir))
	job := s.jobManager.CreateJob(smallJob(), nil)

	if err := s.runJob(context.Background(), job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	if _, err := os.Stat(store.TracePath(dir, job.ID)); err != nil {
		t.Fatalf("Trace file missing: %v", err)
	}

	reader, err := store.NewTraceReader(dir, job.ID)
	if err != nil {
		t.Fatalf("NewTraceReader failed: %v", err)
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	// generation 0 plus one entry per generation
	if len(entries) != 51 {
		t.Errorf("Expected 51 trace entries, got %d", len(entries))
	}
}

func TestRunJob_InvalidConfig(t *testing.T) {
	s := newTestServer(t, nil)

	config := smallJob()
	config.Objective = "no-such-function"
	job := s.jobManager.CreateJob(config, nil)

	if err := s.runJob(context.Background(), job.ID); err == nil {
		t.Error("runJob should fail for an unknown objective")
	}

	updated, _ := s.jobManager.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
}

func TestRunJob_CancelledBeforeStart(t *testing.T) {
	s := newTestServer(t, nil)
	job := s.jobManager.CreateJob(smallJob(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.runJob(ctx, job.ID); err == nil {
		t.Error("runJob should return the context error")
	}

	updated, _ := s.jobManager.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_CancelWhileRunning(t *testing.T) {
	s := newTestServer(t, nil)

	config := smallJob()
	config.Iters = 1 << 40
	ctx, cancel := context.WithCancel(context.Background())
	job := s.jobManager.CreateJob(config, cancel)

	done := make(chan error, 1)
	go func() { done <- s.runJob(ctx, job.ID) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		j, _ := s.jobManager.GetJob(job.ID)
		if j.Generations > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Job never made progress")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.jobManager.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not stop after cancel")
	}

	updated, _ := s.jobManager.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	s := newTestServer(t, nil)
	if err := s.runJob(context.Background(), "missing"); err != ErrJobNotFound {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestPerSecond(t *testing.T) {
	if got := perSecond(100, 2*time.Second); got != 50 {
		t.Errorf("perSecond = %v, want 50", got)
	}
	if got := perSecond(100, 0); got != 0 {
		t.Errorf("perSecond with zero duration = %v, want 0", got)
	}
}
