package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/batopt/internal/runner"
)

var (
	benchFlags    jobFlags
	benchTrials   int
	benchWorkers  int
	compareMayfly bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run repeated seeded trials and summarize them",
	Long: `Runs the configured optimization once per trial with seeds seed, seed+1, ...
and prints per-algorithm statistics of the best fitness. With --compare-mayfly
every trial is repeated with the Mayfly optimizer as a baseline.`,
	RunE: runBench,
}

func init() {
	benchFlags.register(benchCmd.Flags())
	benchCmd.Flags().IntVar(&benchTrials, "trials", 10, "Number of trials")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", 4, "Concurrent trials")
	benchCmd.Flags().BoolVar(&compareMayfly, "compare-mayfly", false, "Also run the Mayfly optimizer on every trial")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := benchFlags.resolve(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting benchmark",
		"objective", cfg.Objective,
		"dim", cfg.Dim,
		"trials", benchTrials,
		"workers", benchWorkers,
		"compare_mayfly", compareMayfly,
	)

	report, err := runner.Bench(ctx, cfg, runner.BenchOptions{
		Trials:        benchTrials,
		Workers:       benchWorkers,
		CompareMayfly: compareMayfly,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	return report.WriteTable(cmd.OutOrStdout())
}
