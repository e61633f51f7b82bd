package opt

import "context"

// Solution is the best point an optimizer found.
type Solution struct {
	Position    []float64
	Cost        float64
	Evaluations int
}

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Name identifies the algorithm in reports
	Name() string

	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64, dim int) (Solution, error)
}
