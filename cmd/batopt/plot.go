package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/batopt/internal/runner"
	"github.com/cwbudde/batopt/internal/store"
)

var (
	plotOut    string
	plotTitle  string
	plotLinear bool
)

var plotCmd = &cobra.Command{
	Use:   "plot TRACE [TRACE...]",
	Short: "Plot convergence traces",
	Long: `Draws best fitness over generations for one or more JSONL traces written
by "batopt run --trace". Each trace becomes one line, named after its file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlot,
}

func init() {
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "convergence.png", "Output image (png, svg or pdf)")
	plotCmd.Flags().StringVar(&plotTitle, "title", "Bat algorithm convergence", "Chart title")
	plotCmd.Flags().BoolVar(&plotLinear, "linear", false, "Use a linear fitness axis instead of log scale")
	rootCmd.AddCommand(plotCmd)
}

func runPlot(cmd *cobra.Command, args []string) error {
	series := make([]runner.Series, 0, len(args))
	for _, path := range args {
		entries, err := readTrace(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		series = append(series, runner.Series{Name: name, Entries: entries})
	}

	if err := runner.PlotTrace(plotOut, plotTitle, !plotLinear, series...); err != nil {
		return fmt.Errorf("failed to plot: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", plotOut)
	return nil
}

func readTrace(path string) ([]store.TraceEntry, error) {
	reader, err := store.OpenTrace(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}
