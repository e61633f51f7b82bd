package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/batopt/internal/runner"
	"github.com/cwbudde/batopt/internal/store"
)

var (
	runFlags       jobFlags
	tracePath      string
	tracePositions bool
	saveRun        bool
	storeKind      string
	dataDir        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run single-shot optimization",
	Long: `Runs one bat algorithm optimization and prints the number of evaluations,
the best position and the best fitness found.`,
	RunE: runOptimization,
}

func init() {
	runFlags.register(runCmd.Flags())
	runCmd.Flags().StringVar(&tracePath, "trace", "", "Write a JSONL convergence trace to this file")
	runCmd.Flags().BoolVar(&tracePositions, "trace-positions", false, "Include the best position in trace entries")
	runCmd.Flags().BoolVar(&saveRun, "save", false, "Save the run record to the store")
	addStoreFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// addStoreFlags registers the run store location flags on cmd.
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&storeKind, "store", "fs", "Run store backend (fs, sqlite)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for stored runs")
}

func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewStore(ctx, storeKind, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return st, nil
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := runFlags.resolve(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runner.Options{Logger: logger, TracePositions: tracePositions}
	if tracePath != "" {
		tw, err := store.CreateTrace(tracePath, false)
		if err != nil {
			return err
		}
		defer tw.Close()
		opts.Trace = tw
	}

	result, err := runner.Run(ctx, cfg, opts)
	if err != nil {
		return err
	}

	if saveRun {
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.CloseIfSupported(st)

		if err := st.SaveRun(ctx, result.RunID, result.Record(cfg)); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		logger.Info("Saved run", "run_id", result.RunID, "store", storeKind, "data_dir", dataDir)
	}

	out := cmd.OutOrStdout()
	if err := result.WriteSummary(out); err != nil {
		return err
	}
	if result.Stopped != "" {
		fmt.Fprintf(out, "Stopped early (%s) after %d generations\n", result.Stopped, result.Generations)
	}
	if tracePath != "" {
		fmt.Fprintf(out, "Wrote trace %s\n", tracePath)
	}
	return nil
}
