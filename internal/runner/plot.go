package runner

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/batopt/internal/store"
)

// Series is a named convergence trace.
type Series struct {
	Name    string
	Entries []store.TraceEntry
}

// PlotTrace draws best fitness over generations for each series and saves
// the chart to path. The file extension selects the format (png, svg, pdf).
// With logY the fitness axis is logarithmic; it falls back to linear when a
// series has non-positive values.
func PlotTrace(path, title string, logY bool, series ...Series) error {
	if len(series) == 0 {
		return errors.New("no trace to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Best fitness"

	positive := true
	for i, s := range series {
		if len(s.Entries) == 0 {
			return fmt.Errorf("series %q is empty", s.Name)
		}

		pts := make(plotter.XYs, len(s.Entries))
		for j, e := range s.Entries {
			pts[j].X = float64(e.Generation)
			pts[j].Y = e.BestFitness
			if e.BestFitness <= 0 {
				positive = false
			}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("series %q: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		if s.Name != "" {
			p.Legend.Add(s.Name, line)
		}
	}

	if logY && positive {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
