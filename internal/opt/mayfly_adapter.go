package opt

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter runs the mayfly library as a baseline next to the bat
// optimizer in benchmarks.
type MayflyAdapter struct {
	iterations int
	population int
	seed       int64
}

// NewMayfly returns a baseline adapter with a fixed budget and seed.
func NewMayfly(iterations, population int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{iterations: iterations, population: population, seed: seed}
}

func (m *MayflyAdapter) Name() string { return "mayfly" }

// Run optimizes eval inside a scalar box. The library accepts one bound per
// side, so lower[0] and upper[0] stand for every dimension.
func (m *MayflyAdapter) Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64, dim int) (Solution, error) {
	if err := ctx.Err(); err != nil {
		return Solution{}, err
	}
	if len(lower) < dim || len(upper) < dim {
		return Solution{}, fmt.Errorf("bounds shorter than dim %d", dim)
	}

	cfg := mayfly.NewDefaultConfig()
	cfg.ObjectiveFunc = eval
	cfg.ProblemSize = dim
	cfg.MaxIterations = m.iterations
	cfg.NPop = m.population
	cfg.LowerBound, cfg.UpperBound = lower[0], upper[0]
	cfg.Rand = rand.New(rand.NewSource(m.seed))

	res, err := mayfly.Optimize(cfg)
	if err != nil {
		return Solution{}, fmt.Errorf("mayfly optimize: %w", err)
	}

	return Solution{
		Position:    res.GlobalBest.Position,
		Cost:        res.GlobalBest.Cost,
		Evaluations: m.iterations * m.population, // not reported by the library
	}, nil
}
