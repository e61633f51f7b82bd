package opt

import (
	"context"
	"math"
	"testing"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // iterations, population, seed

	dim := 3
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = -10
		upper[i] = 10
	}

	sol, err := optimizer.Run(context.Background(), sphere, lower, upper, dim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sol.Position) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(sol.Position))
	}

	// Should converge close to zero
	if sol.Cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", sol.Cost)
	}

	// Check that best params are near origin
	for i, v := range sol.Position {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	dim := 2
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// Run twice with same seed (popSize must be >=20 for mayfly v0.1.0)
	sol1, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper, dim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sol2, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper, dim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sol1.Cost != sol2.Cost {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", sol1.Cost, sol2.Cost)
	}
}

func TestMayflyAdapterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMayfly(10, 20, 1).Run(ctx, sphere, []float64{-1}, []float64{1}, 1); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
