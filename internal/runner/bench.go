package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/batopt/internal/bat"
	"github.com/cwbudde/batopt/internal/opt"
	"github.com/cwbudde/batopt/internal/store"
)

// BenchOptions configure repeated trials.
type BenchOptions struct {
	Trials  int
	Workers int // concurrent trials; <= 0 runs them one at a time

	// CompareMayfly adds a Mayfly baseline run per trial
	CompareMayfly bool

	Logger *slog.Logger
}

// Trial is one seeded run of one algorithm.
type Trial struct {
	Index       int
	Seed        int64
	Algorithm   string
	BestFitness float64
	Evaluations int
	Elapsed     time.Duration
}

// Summary aggregates the trials of one algorithm.
type Summary struct {
	Algorithm string
	Trials    int
	Mean      float64
	StdDev    float64
	Median    float64
	Min       float64
	Max       float64
}

// BenchReport is the outcome of Bench.
type BenchReport struct {
	Trials    []Trial
	Summaries []Summary
}

// Bench runs cfg Trials times with seeds cfg.Seed, cfg.Seed+1, ... Each trial
// owns its optimizer and random source, so trials may run concurrently.
func Bench(ctx context.Context, cfg store.JobConfig, bo BenchOptions) (*BenchReport, error) {
	if bo.Trials <= 0 {
		return nil, &bat.ConfigError{Field: "Trials", Reason: fmt.Sprintf("must be > 0 (got %d)", bo.Trials)}
	}
	setup, err := Prepare(cfg)
	if err != nil {
		return nil, err
	}
	logger := bo.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := max(bo.Workers, 1)

	batOpts := append([]bat.Option{}, setup.Options...)
	batOpts = append(batOpts, bat.WithLogger(logger))

	newOptimizers := func(seed int64) []opt.Optimizer {
		opts := []opt.Optimizer{opt.NewBat(setup.Config, seed, batOpts...)}
		if bo.CompareMayfly {
			opts = append(opts, opt.NewMayfly(cfg.Iters, cfg.PopSize, seed))
		}
		return opts
	}

	logger.Info("Starting benchmark",
		"objective", setup.Function.Name(),
		"trials", bo.Trials,
		"workers", workers,
		"mayfly", bo.CompareMayfly,
	)

	p := pool.NewWithResults[Trial]().WithContext(ctx).WithMaxGoroutines(workers).WithCancelOnError()
	eval := setup.Function.Eval
	for i := 0; i < bo.Trials; i++ {
		seed := cfg.Seed + int64(i)
		for _, o := range newOptimizers(seed) {
			p.Go(func(ctx context.Context) (Trial, error) {
				start := time.Now()
				sol, err := o.Run(ctx, eval, setup.Config.Lower, setup.Config.Upper, setup.Config.Dim)
				if err != nil {
					return Trial{}, fmt.Errorf("trial %d (%s): %w", i, o.Name(), err)
				}
				logger.Debug("Trial complete", "trial", i, "algorithm", o.Name(), "best_fitness", sol.Cost)
				return Trial{
					Index:       i,
					Seed:        seed,
					Algorithm:   o.Name(),
					BestFitness: sol.Cost,
					Evaluations: sol.Evaluations,
					Elapsed:     time.Since(start),
				}, nil
			})
		}
	}

	trials, err := p.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(trials, func(a, b int) bool {
		if trials[a].Index != trials[b].Index {
			return trials[a].Index < trials[b].Index
		}
		return trials[a].Algorithm < trials[b].Algorithm
	})

	report := &BenchReport{Trials: trials}
	for _, name := range algorithms(trials) {
		report.Summaries = append(report.Summaries, summarize(name, trials))
	}
	return report, nil
}

func algorithms(trials []Trial) []string {
	var names []string
	for _, t := range trials {
		if !slices.Contains(names, t.Algorithm) {
			names = append(names, t.Algorithm)
		}
	}
	sort.Strings(names)
	return names
}

func summarize(name string, trials []Trial) Summary {
	var xs []float64
	for _, t := range trials {
		if t.Algorithm == name {
			xs = append(xs, t.BestFitness)
		}
	}
	sort.Float64s(xs)

	s := Summary{
		Algorithm: name,
		Trials:    len(xs),
		Mean:      stat.Mean(xs, nil),
		Median:    stat.Quantile(0.5, stat.Empirical, xs, nil),
		Min:       floats.Min(xs),
		Max:       floats.Max(xs),
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}

// WriteTable prints the summaries as an aligned table.
func (r *BenchReport) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ALGORITHM\tTRIALS\tMEAN\tSTDDEV\tMEDIAN\tMIN\tMAX")
	for _, s := range r.Summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\n",
			s.Algorithm, s.Trials, s.Mean, s.StdDev, s.Median, s.Min, s.Max)
	}
	return tw.Flush()
}
