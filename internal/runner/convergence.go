package runner

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for detecting optimization convergence
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of generations with no significant improvement
	// before stopping
	Patience int

	// Threshold is the minimum relative improvement required to count as progress
	// Example: 0.001 = 0.1% improvement required
	// Relative improvement = (last - new) / |last|
	Threshold float64
}

// DefaultConvergenceConfig returns sensible defaults for convergence detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  50,
		Threshold: 0.001,
	}
}

// ConvergenceTracker follows the best fitness per generation and detects
// when optimization has stalled.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64 // Best fitness ever seen
	lastSignificant float64 // Last fitness that was a significant improvement
	staleCount      int     // Generations without significant improvement
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new best fitness and returns true if convergence is detected
func (c *ConvergenceTracker) Update(fitness float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, fitness)
	if fitness < c.best {
		c.best = fitness
	}

	if len(c.history) == 1 {
		c.lastSignificant = fitness
		return false
	}

	improvement := relativeImprovement(c.lastSignificant, fitness)
	if improvement >= c.config.Threshold && improvement > 0 {
		c.lastSignificant = fitness
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_fitness", c.best,
		)
		return true
	}
	return false
}

// relativeImprovement scales the decrease from last to next by |last|.
// Fitness values may be negative or zero, so the sign comes from the
// difference alone.
func relativeImprovement(last, next float64) float64 {
	if math.IsNaN(next) {
		return 0
	}
	if math.IsNaN(last) || math.IsInf(last, 1) {
		if math.IsInf(next, 1) {
			return 0
		}
		return math.Inf(1)
	}
	diff := last - next
	if diff <= 0 {
		return 0
	}
	if last == 0 {
		return math.Inf(1)
	}
	return diff / math.Abs(last)
}

// Best returns the best fitness seen so far
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns the full fitness history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of generations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = nil
	c.best = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
