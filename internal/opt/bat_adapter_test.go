package opt

import (
	"context"
	"errors"
	"testing"

	"github.com/cwbudde/batopt/internal/bat"
)

func TestBatAdapterOnSphere(t *testing.T) {
	cfg := bat.DefaultConfig()
	cfg.Iterations = 1000

	var optimizer Optimizer = NewBat(cfg, 7, bat.WithMove(bat.ClassicMove))

	lower := []float64{-2, -2, -2, -2}
	upper := []float64{2, 2, 2, 2}
	sol, err := optimizer.Run(context.Background(), sphere, lower, upper, 4)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sol.Position) != 4 {
		t.Fatalf("Expected 4 parameters, got %d", len(sol.Position))
	}
	if sol.Cost > 1e-2 {
		t.Errorf("Expected cost near 0, got %g", sol.Cost)
	}
	if sol.Evaluations != 20+20*1000 {
		t.Errorf("Expected %d evaluations, got %d", 20+20*1000, sol.Evaluations)
	}
}

func TestBatAdapterDeterministic(t *testing.T) {
	cfg := bat.DefaultConfig()
	cfg.Iterations = 50
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	sol1, err := NewBat(cfg, 123).Run(context.Background(), sphere, lower, upper, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sol2, err := NewBat(cfg, 123).Run(context.Background(), sphere, lower, upper, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sol1.Cost != sol2.Cost {
		t.Errorf("Non-deterministic: cost1=%g, cost2=%g", sol1.Cost, sol2.Cost)
	}
}

func TestBatAdapterInvalidConfig(t *testing.T) {
	cfg := bat.DefaultConfig()
	cfg.PopSize = 0

	_, err := NewBat(cfg, 1).Run(context.Background(), sphere, []float64{-1}, []float64{1}, 1)
	if !errors.Is(err, bat.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
}
