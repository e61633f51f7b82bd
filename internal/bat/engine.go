package bat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
)

// perturbScale is the standard deviation of the local walk around the best.
const perturbScale = 0.001

// State is the lifecycle state of an Optimizer.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Snapshot is handed to an Observer after initialization (Generation 0) and
// after every completed generation.
type Snapshot struct {
	Generation   int
	BestFitness  float64
	BestPosition []float64 // copy, safe to retain
	Evaluations  int
}

// Observer is notified with run progress. Returning ErrStop ends the run
// early with a result; any other error aborts it.
type Observer func(Snapshot) error

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithBounds sets the bounds policy (default NoBounds).
func WithBounds(p BoundsPolicy) Option {
	return func(o *Optimizer) { o.bounds = p }
}

// WithFrequency sets the frequency rule (default ReferenceFrequency).
func WithFrequency(r FrequencyRule) Option {
	return func(o *Optimizer) { o.frequency = r }
}

// WithMove sets the per-bat update ordering (default ReferenceMove).
func WithMove(m MoveRule) Option {
	return func(o *Optimizer) { o.move = m }
}

// WithObserver registers a progress observer.
func WithObserver(fn Observer) Option {
	return func(o *Optimizer) { o.observer = fn }
}

// WithLogger overrides the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// Optimizer runs the Bat Algorithm. It is not safe for concurrent use; run
// independent optimizers with their own random sources instead.
type Optimizer struct {
	cfg       Config
	objective Objective
	bounds    BoundsPolicy
	frequency FrequencyRule
	move      MoveRule
	observer  Observer
	logger    *slog.Logger
	rng       *rand.Rand

	state       State
	pop         *Population
	evaluations int
	scratch     []float64
	candidate   []float64
}

// New validates cfg and returns an optimizer in the Uninitialized state.
// All configuration errors are reported here, never during Run.
func New(cfg Config, objective Objective, rng *rand.Rand, opts ...Option) (*Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if objective == nil {
		return nil, &ConfigError{Field: "Objective", Reason: "cannot be nil"}
	}
	if rng == nil {
		return nil, &ConfigError{Field: "Rand", Reason: "cannot be nil"}
	}

	// Own the bounds so callers can't change them mid-run
	cfg.Lower = slices.Clone(cfg.Lower)
	cfg.Upper = slices.Clone(cfg.Upper)

	o := &Optimizer{
		cfg:       cfg,
		objective: objective,
		bounds:    NoBounds,
		frequency: ReferenceFrequency,
		move:      ReferenceMove,
		logger:    slog.Default(),
		rng:       rng,
		state:     StateUninitialized,
		scratch:   make([]float64, cfg.Dim),
		candidate: make([]float64, cfg.Dim),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.bounds == nil {
		return nil, &ConfigError{Field: "Bounds", Reason: "policy cannot be nil"}
	}
	if o.frequency == nil {
		return nil, &ConfigError{Field: "Frequency", Reason: "rule cannot be nil"}
	}
	if _, err := ParseMoveRule(string(o.move)); err != nil {
		return nil, err
	}
	return o, nil
}

// State returns the lifecycle state.
func (o *Optimizer) State() State { return o.state }

// Config returns the run configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Population exposes the live population; nil before Run.
func (o *Optimizer) Population() *Population { return o.pop }

// Run initializes the population and performs cfg.Iterations generations.
// It may be called once. On failure no result is returned.
func (o *Optimizer) Run(ctx context.Context) (*Result, error) {
	if o.state != StateUninitialized {
		return nil, ErrAlreadyRun
	}
	o.state = StateRunning
	start := time.Now()

	res, err := o.run(ctx)
	if err != nil {
		o.state = StateFailed
		o.logger.Error("Bat run failed", "error", err)
		return nil, err
	}

	o.state = StateCompleted
	res.Elapsed = time.Since(start)
	o.logger.Info("Bat run complete",
		"evaluations", res.Evaluations,
		"best_fitness", res.BestFitness,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (o *Optimizer) run(ctx context.Context) (*Result, error) {
	o.logger.Info("Starting bat run",
		"bats", o.cfg.PopSize,
		"iterations", o.cfg.Iterations,
		"dim", o.cfg.Dim,
		"move", o.move,
	)

	pop, err := newPopulation(o.cfg, o.objective, o.rng)
	if err != nil {
		return nil, err
	}
	o.pop = pop

	res := &Result{
		InitialFitness:  pop.Best.Fitness,
		InitEvaluations: o.cfg.PopSize,
	}
	stop, err := o.notify(0)
	if err != nil {
		return nil, err
	}

	g := 0
	for !stop && g < o.cfg.Iterations {
		g++
		if err := ctx.Err(); err != nil {
			return nil, &RunError{Generation: g, Bat: -1, Stage: StageCancel, Err: err}
		}

		// Fold over the bats: each update sees the best left by the previous one
		best := pop.Best
		for i := range pop.Bats {
			best, err = o.step(g, i, &pop.Bats[i], best)
			if err != nil {
				return nil, err
			}
			o.evaluations++
		}
		pop.Best = best

		if stop, err = o.notify(g); err != nil {
			return nil, err
		}
	}

	res.BestPosition = slices.Clone(pop.Best.Position)
	res.BestFitness = pop.Best.Fitness
	res.Evaluations = o.evaluations
	res.Generations = g
	res.Stopped = stop
	return res, nil
}

func (o *Optimizer) notify(g int) (bool, error) {
	o.logger.Debug("Generation complete", "generation", g, "best_fitness", o.pop.Best.Fitness)
	if o.observer == nil {
		return false, nil
	}
	err := o.observer(Snapshot{
		Generation:   g,
		BestFitness:  o.pop.Best.Fitness,
		BestPosition: slices.Clone(o.pop.Best.Position),
		Evaluations:  o.evaluations,
	})
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrStop):
		o.logger.Info("Run stopped by observer", "generation", g, "best_fitness", o.pop.Best.Fitness)
		return true, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false, &RunError{Generation: g, Bat: -1, Stage: StageCancel, Err: err}
	default:
		return false, &RunError{Generation: g, Bat: -1, Stage: StageObserve, Err: err}
	}
}

func (o *Optimizer) step(g, i int, b *Bat, best Best) (Best, error) {
	if o.move == ClassicMove {
		return o.classicStep(g, i, b, best)
	}
	return o.referenceStep(g, i, b, best)
}

// fly draws the frequency, updates the velocity and writes x+v to o.candidate.
func (o *Optimizer) fly(b *Bat, best Best) {
	b.Frequency = o.frequency(o.cfg.FrequencyMin, o.cfg.FrequencyMax, o.rng.Float64())
	floats.SubTo(o.scratch, b.Position, best.Position)
	floats.AddScaled(b.Velocity, b.Frequency, o.scratch)
	floats.AddTo(o.candidate, b.Position, b.Velocity)
}

// pulse replaces x with a small gaussian walk around the best when the
// pulse draw exceeds the pulse rate.
func (o *Optimizer) pulse(x []float64, best Best) {
	if o.rng.Float64() > o.pop.PulseRate {
		for j := range x {
			x[j] = best.Position[j] + perturbScale*o.rng.NormFloat64()
		}
	}
}

func (o *Optimizer) applyBounds(g, i int, x []float64) error {
	out, err := o.bounds(x, o.cfg.Lower, o.cfg.Upper)
	if err != nil {
		return &RunError{Generation: g, Bat: i, Stage: StageBounds, Err: err}
	}
	if len(out) != len(x) {
		return &RunError{
			Generation: g,
			Bat:        i,
			Stage:      StageBounds,
			Err:        fmt.Errorf("policy returned %d components, want %d", len(out), len(x)),
		}
	}
	copy(x, out)
	return nil
}

func (o *Optimizer) evaluate(g, i int, x []float64) (float64, error) {
	f, err := o.objective.Evaluate(x)
	if err != nil {
		return 0, &RunError{Generation: g, Bat: i, Stage: StageEvaluate, Err: err}
	}
	return f, nil
}

// referenceStep bounds and perturbs the current position, evaluates it, and
// on acceptance adopts the velocity candidate with that fitness.
func (o *Optimizer) referenceStep(g, i int, b *Bat, best Best) (Best, error) {
	o.fly(b, best)

	if err := o.applyBounds(g, i, b.Position); err != nil {
		return best, err
	}
	o.pulse(b.Position, best)

	fnew, err := o.evaluate(g, i, b.Position)
	if err != nil {
		return best, err
	}

	// Always drawn so the random stream doesn't depend on fitness values
	a := o.rng.Float64()
	if fnew <= b.Fitness && a < o.pop.Loudness {
		copy(b.Position, o.candidate)
		b.Fitness = fnew
	}

	// NaN never compares <=, so it is never recorded as best
	if fnew <= best.Fitness {
		best = Best{Position: slices.Clone(b.Position), Fitness: fnew}
	}
	return best, nil
}

// classicStep bounds the velocity candidate, optionally replaces it with a
// walk around the best, and evaluates the candidate itself.
func (o *Optimizer) classicStep(g, i int, b *Bat, best Best) (Best, error) {
	o.fly(b, best)

	if err := o.applyBounds(g, i, o.candidate); err != nil {
		return best, err
	}
	o.pulse(o.candidate, best)

	fnew, err := o.evaluate(g, i, o.candidate)
	if err != nil {
		return best, err
	}

	a := o.rng.Float64()
	if fnew <= b.Fitness && a < o.pop.Loudness {
		copy(b.Position, o.candidate)
		b.Fitness = fnew
	}

	if fnew <= best.Fitness {
		best = Best{Position: slices.Clone(o.candidate), Fitness: fnew}
	}
	return best, nil
}
