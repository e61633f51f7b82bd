package bat

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of a completed run.
type Result struct {
	BestPosition   []float64
	BestFitness    float64
	InitialFitness float64 // best fitness after initialization

	// Evaluations counts objective calls inside the generation loop (N per
	// generation). The N initialization calls are reported separately.
	Evaluations     int
	InitEvaluations int

	Generations int
	Stopped     bool // ended early by an Observer
	Elapsed     time.Duration
}

// WriteSummary prints the plain-text run report.
func (r *Result) WriteSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Number of evaluations : %d\nBest = %s\nfmin = %s\n",
		r.Evaluations,
		FormatVector(r.BestPosition),
		strconv.FormatFloat(r.BestFitness, 'g', -1, 64),
	)
	return err
}

// FormatVector renders a vector as "[x0, x1, ...]".
func FormatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
