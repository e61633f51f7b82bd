package opt

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/batopt/internal/bat"
)

// BatAdapter runs the bat optimizer behind the Optimizer interface.
type BatAdapter struct {
	cfg  bat.Config
	seed int64
	opts []bat.Option
}

// NewBat creates an adapter. The Dim, Lower and Upper fields of cfg are
// replaced by the arguments of each Run.
func NewBat(cfg bat.Config, seed int64, opts ...bat.Option) *BatAdapter {
	return &BatAdapter{cfg: cfg, seed: seed, opts: opts}
}

func (b *BatAdapter) Name() string { return "bat" }

// Run executes one bat optimization with a fresh seeded random source.
func (b *BatAdapter) Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64, dim int) (Solution, error) {
	cfg := b.cfg
	cfg.Dim = dim
	cfg.Lower = lower[:dim]
	cfg.Upper = upper[:dim]

	optimizer, err := bat.New(cfg, bat.Func(eval), rand.New(rand.NewSource(b.seed)), b.opts...)
	if err != nil {
		return Solution{}, err
	}

	res, err := optimizer.Run(ctx)
	if err != nil {
		return Solution{}, err
	}

	slog.Debug("Bat adapter finished", "seed", b.seed, "best_fitness", res.BestFitness)
	return Solution{
		Position:    res.BestPosition,
		Cost:        res.BestFitness,
		Evaluations: res.InitEvaluations + res.Evaluations,
	}, nil
}
