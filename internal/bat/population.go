package bat

import (
	"math"
	"math/rand"
	"slices"
)

// Bat is one member of the population.
type Bat struct {
	Position  []float64
	Velocity  []float64
	Frequency float64
	Fitness   float64 // cached objective of Position, refreshed only on acceptance
}

// Best is the global best seen so far. Position is always owned by Best and
// never shares storage with a bat.
type Best struct {
	Position []float64
	Fitness  float64
}

// Population holds the bats and the run-wide scalars.
type Population struct {
	Bats      []Bat
	Best      Best
	Loudness  float64
	PulseRate float64
}

// newPopulation draws N uniform positions inside the box, evaluates them in
// index order and extracts the best (first index wins ties).
func newPopulation(cfg Config, objective Objective, rng *rand.Rand) (*Population, error) {
	pop := &Population{
		Bats:      make([]Bat, cfg.PopSize),
		Loudness:  cfg.Loudness(),
		PulseRate: cfg.PulseRate(),
	}

	for i := range pop.Bats {
		pos := make([]float64, cfg.Dim)
		for j := range pos {
			pos[j] = cfg.Lower[j] + (cfg.Upper[j]-cfg.Lower[j])*rng.Float64()
		}

		fitness, err := objective.Evaluate(pos)
		if err != nil {
			return nil, &RunError{Generation: 0, Bat: i, Stage: StageInit, Err: err}
		}

		pop.Bats[i] = Bat{
			Position: pos,
			Velocity: make([]float64, cfg.Dim),
			Fitness:  fitness,
		}
	}

	// A NaN fitness only wins when every bat is NaN
	best := 0
	for i := range pop.Bats {
		f := pop.Bats[i].Fitness
		if f < pop.Bats[best].Fitness || (math.IsNaN(pop.Bats[best].Fitness) && !math.IsNaN(f)) {
			best = i
		}
	}
	pop.Best = Best{
		Position: slices.Clone(pop.Bats[best].Position),
		Fitness:  pop.Bats[best].Fitness,
	}

	return pop, nil
}
