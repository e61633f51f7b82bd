// Package runner turns a JobConfig into a bat optimization run and wires in
// tracing, early stopping and result reporting.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/batopt/internal/bat"
	"github.com/cwbudde/batopt/internal/objective"
	"github.com/cwbudde/batopt/internal/store"
)

// Reasons recorded in OptimizationResult.Stopped.
const (
	StopConverged = "converged"
	StopBudget    = "budget"
)

// Setup is a JobConfig resolved into optimizer parts.
type Setup struct {
	Config   bat.Config
	Function objective.Function
	Options  []bat.Option
	MoveRule bat.MoveRule
}

// Prepare resolves the objective, bounds and update rules of cfg.
// Every rejected field is reported as a *bat.ConfigError.
func Prepare(cfg store.JobConfig) (*Setup, error) {
	fn, err := objective.Lookup(cfg.Objective)
	if err != nil {
		return nil, &bat.ConfigError{Field: "Objective", Reason: err.Error()}
	}
	if cfg.Dim <= 0 {
		return nil, &bat.ConfigError{Field: "Dim", Reason: fmt.Sprintf("must be > 0 (got %d)", cfg.Dim)}
	}

	defLower, defUpper := fn.Bounds(cfg.Dim)
	lower, err := store.ExpandBounds(cfg.Lower, cfg.Dim)
	if err != nil {
		return nil, &bat.ConfigError{Field: "Lower", Reason: err.Error()}
	}
	if lower == nil {
		lower = defLower
	}
	upper, err := store.ExpandBounds(cfg.Upper, cfg.Dim)
	if err != nil {
		return nil, &bat.ConfigError{Field: "Upper", Reason: err.Error()}
	}
	if upper == nil {
		upper = defUpper
	}

	policy, err := bat.BoundsPolicyByName(cfg.Bounds)
	if err != nil {
		return nil, err
	}
	freq, err := bat.FrequencyRuleByName(cfg.Frequency)
	if err != nil {
		return nil, err
	}
	move, err := bat.ParseMoveRule(cfg.Move)
	if err != nil {
		return nil, err
	}

	switch {
	case cfg.Patience < 0:
		return nil, &bat.ConfigError{Field: "Patience", Reason: "cannot be negative"}
	case cfg.Threshold < 0:
		return nil, &bat.ConfigError{Field: "Threshold", Reason: "cannot be negative"}
	case cfg.TimeoutSeconds < 0:
		return nil, &bat.ConfigError{Field: "TimeoutSeconds", Reason: "cannot be negative"}
	case cfg.TraceEvery < 0:
		return nil, &bat.ConfigError{Field: "TraceEvery", Reason: "cannot be negative"}
	}

	bc := bat.Config{
		PopSize:      cfg.PopSize,
		Iterations:   cfg.Iters,
		LoudnessMin:  cfg.LoudnessMin,
		LoudnessMax:  cfg.LoudnessMax,
		PulseRateMin: cfg.PulseRateMin,
		PulseRateMax: cfg.PulseRateMax,
		FrequencyMin: cfg.FrequencyMin,
		FrequencyMax: cfg.FrequencyMax,
		Dim:          cfg.Dim,
		Lower:        lower,
		Upper:        upper,
	}
	if err := bc.Validate(); err != nil {
		return nil, err
	}

	return &Setup{
		Config:   bc,
		Function: fn,
		Options:  []bat.Option{bat.WithBounds(policy), bat.WithFrequency(freq), bat.WithMove(move)},
		MoveRule: move,
	}, nil
}

// Options customize a single Run.
type Options struct {
	// RunID labels logs and results; a UUID is generated when empty
	RunID string

	Logger *slog.Logger

	// Trace receives one entry per traced generation (optional)
	Trace *store.TraceWriter

	// TracePositions includes the best position in trace entries
	TracePositions bool

	// Progress is called with every snapshot (optional)
	Progress func(bat.Snapshot)
}

// OptimizationResult holds the output of an optimization run
type OptimizationResult struct {
	RunID           string
	BestPosition    []float64
	BestFitness     float64
	InitialFitness  float64
	Evaluations     int
	InitEvaluations int
	Generations     int
	Stopped         string // empty when all generations ran
	Elapsed         time.Duration
}

// Run executes one optimization for cfg. Cancelling ctx aborts the run with
// a *bat.RunError; patience and the wall-clock budget end it early with a
// result instead.
func Run(ctx context.Context, cfg store.JobConfig, opts Options) (*OptimizationResult, error) {
	setup, err := Prepare(cfg)
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", runID)

	tracker := NewConvergenceTracker(ConvergenceConfig{
		Enabled:   cfg.Patience > 0,
		Patience:  cfg.Patience,
		Threshold: cfg.Threshold,
	})

	var deadline time.Time
	if cfg.TimeoutSeconds > 0 {
		deadline = time.Now().Add(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}

	traceEvery := max(cfg.TraceEvery, 1)
	var stopped string
	traceFailed := false

	observer := func(s bat.Snapshot) error {
		if opts.Trace != nil && s.Generation%traceEvery == 0 && !traceFailed {
			entry := store.TraceEntry{
				Generation:  s.Generation,
				BestFitness: s.BestFitness,
				Evaluations: s.Evaluations,
				Timestamp:   time.Now(),
			}
			if opts.TracePositions {
				entry.BestPosition = s.BestPosition
			}
			if err := opts.Trace.Write(entry); err != nil {
				// Tracing is best effort; the run itself continues
				logger.Warn("Trace write failed, disabling trace", "generation", s.Generation, "error", err)
				traceFailed = true
			}
		}
		if opts.Progress != nil {
			opts.Progress(s)
		}
		if tracker.Update(s.BestFitness) {
			stopped = StopConverged
			return bat.ErrStop
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			logger.Info("Time budget exhausted", "generation", s.Generation)
			stopped = StopBudget
			return bat.ErrStop
		}
		return nil
	}

	engineOpts := append([]bat.Option{}, setup.Options...)
	engineOpts = append(engineOpts, bat.WithObserver(observer), bat.WithLogger(logger))

	engine, err := bat.New(setup.Config, objective.AsObjective(setup.Function), rand.New(rand.NewSource(cfg.Seed)), engineOpts...)
	if err != nil {
		return nil, err
	}

	logger.Info("Starting optimization",
		"objective", setup.Function.Name(),
		"dim", cfg.Dim,
		"seed", cfg.Seed,
		"move", setup.MoveRule,
	)

	res, err := engine.Run(ctx)
	if opts.Trace != nil {
		if ferr := opts.Trace.Flush(); ferr != nil {
			logger.Warn("Trace flush failed", "error", ferr)
		}
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Optimization complete",
		"initial_fitness", res.InitialFitness,
		"best_fitness", res.BestFitness,
		"generations", res.Generations,
		"stopped", stopped,
	)

	return &OptimizationResult{
		RunID:           runID,
		BestPosition:    res.BestPosition,
		BestFitness:     res.BestFitness,
		InitialFitness:  res.InitialFitness,
		Evaluations:     res.Evaluations,
		InitEvaluations: res.InitEvaluations,
		Generations:     res.Generations,
		Stopped:         stopped,
		Elapsed:         res.Elapsed,
	}, nil
}

// Record converts the result into a persistable run record.
func (r *OptimizationResult) Record(cfg store.JobConfig) *store.RunRecord {
	rec := store.NewRunRecord(r.RunID, cfg, r.BestPosition, r.BestFitness, r.InitialFitness, r.Evaluations, r.Generations)
	rec.Stopped = r.Stopped
	rec.ElapsedSeconds = r.Elapsed.Seconds()
	return rec
}

// WriteSummary prints the plain-text run report.
func (r *OptimizationResult) WriteSummary(w io.Writer) error {
	res := bat.Result{
		BestPosition: r.BestPosition,
		BestFitness:  r.BestFitness,
		Evaluations:  r.Evaluations,
	}
	return res.WriteSummary(w)
}
