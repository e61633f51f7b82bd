package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/batopt/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showJSON      bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored optimization runs",
	Long: `Manage run records saved by "batopt run --save" and by the server,
including listing, inspecting, deleting and cleaning old runs.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Args:  cobra.NoArgs,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show RUN-ID",
	Short: "Show one stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var deleteRunCmd = &cobra.Command{
	Use:   "delete RUN-ID [RUN-ID...]",
	Short: "Delete stored runs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDeleteRuns,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep only the newest N runs or delete runs older than N days.`,
	Args: cobra.NoArgs,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(listRunsCmd, showRunCmd, deleteRunCmd, cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&storeKind, "store", "fs", "Run store backend (fs, sqlite)")
	runsCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Base directory for stored runs")

	showRunCmd.Flags().BoolVar(&showJSON, "json", false, "Print the full record as JSON")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(st)
	return fn(ctx, st)
}

func runListRuns(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		infos, err := st.ListRuns(ctx)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		return writeRunTable(cmd.OutOrStdout(), infos)
	})
}

func writeRunTable(out io.Writer, infos []store.RunInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tOBJECTIVE\tDIM\tGENERATIONS\tEVALUATIONS\tBEST FITNESS")
	fmt.Fprintln(w, "------\t---------\t---------\t---\t-----------\t-----------\t------------")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%g\n",
			shortRunID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Objective,
			info.Dim,
			info.Generations,
			info.Evaluations,
			info.BestFitness,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		rec, err := st.LoadRun(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if showJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		return writeRunDetails(out, rec)
	})
}

func writeRunDetails(out io.Writer, rec *store.RunRecord) error {
	fmt.Fprintf(out, "Run: %s\n", rec.RunID)
	fmt.Fprintf(out, "Saved: %s\n", rec.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Objective: %s (dim %d, pop %d, seed %d)\n",
		rec.Config.Objective, rec.Config.Dim, rec.Config.PopSize, rec.Config.Seed)
	fmt.Fprintf(out, "Rules: move=%s frequency=%s bounds=%s\n",
		rec.Config.Move, rec.Config.Frequency, rec.Config.Bounds)
	fmt.Fprintf(out, "Generations: %d/%d\n", rec.Generations, rec.Config.Iters)
	if rec.Stopped != "" {
		fmt.Fprintf(out, "Stopped: %s\n", rec.Stopped)
	}
	fmt.Fprintf(out, "Initial fitness: %g\n", rec.InitialFitness)
	fmt.Fprintf(out, "Elapsed: %s\n", time.Duration(rec.ElapsedSeconds*float64(time.Second)).Round(time.Millisecond))
	fmt.Fprintf(out, "Number of evaluations : %d\n", rec.Evaluations)
	fmt.Fprintf(out, "Best = %v\n", rec.BestPosition)
	_, err := fmt.Fprintf(out, "fmin = %g\n", rec.BestFitness)
	return err
}

func runDeleteRuns(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		for _, id := range args {
			if err := st.DeleteRun(ctx, id); err != nil {
				return fmt.Errorf("failed to delete run %s: %w", id, err)
			}
			slog.Info("Deleted run", "run_id", id)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		}
		return nil
	})
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		out := cmd.OutOrStdout()

		infos, err := st.ListRuns(ctx)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(infos) == 0 {
			fmt.Fprintln(out, "No runs to clean.")
			return nil
		}

		toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
		if len(toDelete) == 0 {
			fmt.Fprintln(out, "No runs match deletion criteria.")
			return nil
		}

		fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
		for _, info := range toDelete {
			fmt.Fprintf(out, "  - %s (%s, fitness %g, %s)\n",
				shortRunID(info.RunID),
				info.Objective,
				info.BestFitness,
				info.Timestamp.Format("2006-01-02 15:04:05"),
			)
		}

		if !forceClean && !confirm(cmd.InOrStdin(), out, "\nProceed with deletion? [y/N]: ") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}

		deleted, failed := 0, 0
		for _, info := range toDelete {
			if err := st.DeleteRun(ctx, info.RunID); err != nil {
				slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
				failed++
			} else {
				slog.Info("Deleted run", "run_id", info.RunID)
				deleted++
			}
		}

		fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
		return nil
	})
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

// selectRunsForDeletion applies the retention policy: runs older than
// olderThanDays, plus everything but the newest keepLast runs. Each run is
// selected at most once, oldest first.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, now time.Time) []store.RunInfo {
	sorted := make([]store.RunInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}
	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}

	var toDelete []store.RunInfo
	for i, info := range sorted {
		if i < excess || (!cutoff.IsZero() && info.Timestamp.Before(cutoff)) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortRunID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
