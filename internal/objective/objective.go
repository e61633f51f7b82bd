// Package objective provides benchmark functions for exercising the
// optimizer, from https://en.wikipedia.org/wiki/Test_functions_for_optimization.
package objective

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/batopt/internal/bat"
)

// ErrUnknownObjective is returned by Lookup for unregistered names.
var ErrUnknownObjective = errors.New("unknown objective")

// Function is a benchmark objective defined for any dimension.
type Function interface {
	Name() string
	Eval(x []float64) float64
	// Bounds returns the conventional search box for dim dimensions
	Bounds(dim int) (lower, upper []float64)
	// Optimum returns a global minimizer and its value
	Optimum(dim int) (x []float64, f float64)
}

var registry = map[string]Function{
	"sphere":          Sphere{},
	"rastrigin":       Rastrigin{},
	"rosenbrock":      Rosenbrock{},
	"ackley":          Ackley{},
	"styblinski-tang": StyblinskiTang{},
}

// Lookup returns the function registered under name.
func Lookup(name string) (Function, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownObjective, name, Names())
	}
	return fn, nil
}

// Names lists registered objectives in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AsObjective adapts a Function for the optimizer.
func AsObjective(fn Function) bat.Objective {
	return bat.Func(fn.Eval)
}

func uniform(dim int, lo, hi float64) (lower, upper []float64) {
	return bat.UniformBounds(dim, lo, hi)
}

func filled(dim int, v float64) []float64 {
	x := make([]float64, dim)
	for i := range x {
		x[i] = v
	}
	return x
}

// Sphere is the sum of squares, the reference objective.
type Sphere struct{}

func (Sphere) Name() string { return "sphere" }

func (Sphere) Eval(x []float64) float64 { return floats.Dot(x, x) }

func (Sphere) Bounds(dim int) (lower, upper []float64) { return uniform(dim, -2, 2) }

func (Sphere) Optimum(dim int) ([]float64, float64) { return make([]float64, dim), 0 }

// Rastrigin is highly multimodal with a regular lattice of local minima.
type Rastrigin struct{}

func (Rastrigin) Name() string { return "rastrigin" }

func (Rastrigin) Eval(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

func (Rastrigin) Bounds(dim int) (lower, upper []float64) { return uniform(dim, -5.12, 5.12) }

func (Rastrigin) Optimum(dim int) ([]float64, float64) { return make([]float64, dim), 0 }

// Rosenbrock has its minimum at the end of a narrow curved valley.
type Rosenbrock struct{}

func (Rosenbrock) Name() string { return "rosenbrock" }

func (Rosenbrock) Eval(x []float64) float64 {
	var sum float64
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

func (Rosenbrock) Bounds(dim int) (lower, upper []float64) { return uniform(dim, -2.048, 2.048) }

func (Rosenbrock) Optimum(dim int) ([]float64, float64) { return filled(dim, 1), 0 }

// Ackley is nearly flat far from the origin with a deep central hole.
type Ackley struct{}

func (Ackley) Name() string { return "ackley" }

func (Ackley) Eval(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	var sq, cs float64
	for _, v := range x {
		sq += v * v
		cs += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sq/n)) - math.Exp(cs/n) + 20 + math.E
}

func (Ackley) Bounds(dim int) (lower, upper []float64) { return uniform(dim, -32.768, 32.768) }

func (Ackley) Optimum(dim int) ([]float64, float64) { return make([]float64, dim), 0 }

// styblinskiArgMin is the per-dimension minimizer of Styblinski-Tang.
const styblinskiArgMin = -2.903534027771178

// StyblinskiTang is separable with its minimum near -39.166 per dimension.
type StyblinskiTang struct{}

func (StyblinskiTang) Name() string { return "styblinski-tang" }

func (StyblinskiTang) Eval(x []float64) float64 {
	var tot float64
	for _, v := range x {
		v2 := v * v
		tot += v2*v2 - 16*v2 + 5*v
	}
	return tot / 2
}

func (StyblinskiTang) Bounds(dim int) (lower, upper []float64) { return uniform(dim, -5, 5) }

func (fn StyblinskiTang) Optimum(dim int) ([]float64, float64) {
	x := filled(dim, styblinskiArgMin)
	return x, fn.Eval(x)
}

// Counting wraps an objective and counts calls. Safe for concurrent use.
type Counting struct {
	obj   bat.Objective
	calls atomic.Int64
}

// NewCounting wraps obj.
func NewCounting(obj bat.Objective) *Counting {
	return &Counting{obj: obj}
}

func (c *Counting) Evaluate(x []float64) (float64, error) {
	c.calls.Add(1)
	return c.obj.Evaluate(x)
}

// Calls returns the number of evaluations so far.
func (c *Counting) Calls() int64 { return c.calls.Load() }
