package runner

import (
	"math"
	"testing"
)

func TestConvergenceTracker_Disabled(t *testing.T) {
	c := NewConvergenceTracker(ConvergenceConfig{Enabled: false, Patience: 1})
	for i := 0; i < 10; i++ {
		if c.Update(1) {
			t.Fatal("Disabled tracker must never converge")
		}
	}
	if len(c.History()) != 0 {
		t.Error("Disabled tracker should not record history")
	}
}

func TestConvergenceTracker_Patience(t *testing.T) {
	c := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 0.01})

	steps := []struct {
		fitness float64
		want    bool
		stale   int
	}{
		{10, false, 0},
		{5, false, 0},     // 50% better
		{4.99, false, 1},  // 0.2%, below threshold
		{4.98, false, 2},  // still measured from 5
		{4.90, false, 0},  // 2% better than 5
		{4.90, false, 1},  // no change
		{4.90, false, 2},  //
		{4.895, true, 3},  // patience exhausted
	}
	for i, s := range steps {
		if got := c.Update(s.fitness); got != s.want {
			t.Errorf("Step %d: Update(%v) = %v, want %v", i, s.fitness, got, s.want)
		}
		if c.StaleCount() != s.stale {
			t.Errorf("Step %d: stale count %d, want %d", i, c.StaleCount(), s.stale)
		}
	}
	if c.Best() != 4.895 {
		t.Errorf("Expected best 4.895, got %v", c.Best())
	}
	if len(c.History()) != len(steps) {
		t.Errorf("Expected %d history entries, got %d", len(steps), len(c.History()))
	}
}

func TestConvergenceTracker_NegativeFitness(t *testing.T) {
	c := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.1})

	c.Update(-10)
	// -12 is 20% better than -10
	c.Update(-12)
	if c.StaleCount() != 0 {
		t.Errorf("Improvement on negative fitness not recognized, stale=%d", c.StaleCount())
	}
	// -8 is worse
	c.Update(-8)
	if c.StaleCount() != 1 {
		t.Errorf("Worse fitness should be stale, got %d", c.StaleCount())
	}
}

func TestRelativeImprovement(t *testing.T) {
	tests := []struct {
		name       string
		last, next float64
		want       float64
	}{
		{"halved", 10, 5, 0.5},
		{"worse", 5, 10, 0},
		{"equal", 5, 5, 0},
		{"from zero", 0, -1, math.Inf(1)},
		{"from infinity", math.Inf(1), 3, math.Inf(1)},
		{"NaN next", 3, math.NaN(), 0},
		{"negative", -10, -15, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relativeImprovement(tt.last, tt.next); got != tt.want {
				t.Errorf("relativeImprovement(%v, %v) = %v, want %v", tt.last, tt.next, got, tt.want)
			}
		})
	}
}

func TestConvergenceTracker_Reset(t *testing.T) {
	c := NewConvergenceTracker(DefaultConvergenceConfig())
	c.Update(3)
	c.Update(3)
	c.Reset()

	if c.StaleCount() != 0 || len(c.History()) != 0 || !math.IsInf(c.Best(), 1) {
		t.Error("Reset should clear all state")
	}
}
