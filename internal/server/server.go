package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/batopt/internal/runner"
	"github.com/cwbudde/batopt/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	addr       string
	server     *http.Server
	store      store.Store
	traceDir   string
	logger     *slog.Logger
	metrics    *metrics

	// baseCtx parents every job; cancelled on Shutdown
	baseCtx    context.Context
	cancelJobs context.CancelFunc
	workers    sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithTraceDir writes a JSONL trace per job under dir.
func WithTraceDir(dir string) Option {
	return func(s *Server) { s.traceDir = dir }
}

// WithLogger overrides the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new HTTP server. Completed runs are saved to st
// when it is not nil.
func NewServer(addr string, st store.Store, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(),
		addr:       addr,
		store:      st,
		logger:     slog.Default(),
		metrics:    newMetrics(),
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.watchBroadcaster(s.jobManager.broadcaster)
	return s
}

// Handler builds the routed handler with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunWithID)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	handler := s.loggingMiddleware(s.corsMiddleware(compressExceptStream(mux)))
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs, waits for their workers and stops the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.cancelJobs()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	jobID, sub := splitPath(r.URL.Path, "/api/v1/jobs/")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID required")
		return
	}

	switch {
	case r.Method == http.MethodDelete && sub == "":
		s.handleCancelJob(w, jobID)
	case r.Method != http.MethodGet:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	case sub == "" || sub == "status":
		s.handleGetJobStatus(w, jobID)
	case sub == "stream":
		s.handleJobStream(w, r, jobID)
	case sub == "trace":
		s.handleGetTrace(w, jobID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleCreateJob handles POST /api/v1/jobs. Fields missing from the body
// keep their default values.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	config := store.DefaultJobConfig()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	if _, err := runner.Prepare(config); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	job := s.jobManager.CreateJob(config, cancel)
	s.metrics.jobsStarted.Inc()

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer cancel()
		_ = s.runJob(ctx, job.ID)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	elapsed := job.Elapsed()
	response := map[string]any{
		"id":             job.ID,
		"state":          job.State,
		"config":         job.Config,
		"bestPosition":   job.BestPosition,
		"bestFitness":    job.BestFitness,
		"initialFitness": job.InitialFitness,
		"generations":    job.Generations,
		"evaluations":    job.Evaluations,
		"stopped":        job.Stopped,
		"elapsed":        elapsed.Seconds(),
		"eps":            perSecond(job.Evaluations, elapsed),
		"startTime":      job.StartTime,
		"endTime":        job.EndTime,
		"error":          job.Error,
	}
	writeJSON(w, http.StatusOK, response)
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, jobID string) {
	err := s.jobManager.CancelJob(jobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, ErrJobFinished):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
	}
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if s.traceDir == "" {
		writeError(w, http.StatusNotFound, "tracing disabled")
		return
	}

	reader, err := store.NewTraceReader(s.traceDir, jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no trace yet")
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRuns handles GET /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no run store configured")
		return
	}

	infos, err := s.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleRunWithID handles GET and DELETE /api/v1/runs/:id
func (s *Server) handleRunWithID(w http.ResponseWriter, r *http.Request) {
	runID, _ := splitPath(r.URL.Path, "/api/v1/runs/")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run ID required")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "no run store configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.store.LoadRun(r.Context(), runID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		err := s.store.DeleteRun(r.Context(), runID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// compressExceptStream gzips responses except SSE streams, which must reach
// the client event by event.
func compressExceptStream(next http.Handler) http.Handler {
	compressed := handlers.CompressHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/stream") {
			next.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
