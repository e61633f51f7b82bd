package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/cwbudde/batopt/internal/bat"
)

// JobConfig holds the configuration of one optimization run. It is shared by
// the CLI (--config file), the HTTP job API and persisted run records.
type JobConfig struct {
	Objective string `json:"objective"`
	Dim       int    `json:"dim"`

	// Lower and Upper are per-dimension bounds. A single value applies to
	// every dimension; empty means the objective's conventional box.
	Lower []float64 `json:"lower,omitempty"`
	Upper []float64 `json:"upper,omitempty"`

	PopSize      int     `json:"popSize"`
	Iters        int     `json:"iters"`
	LoudnessMin  float64 `json:"loudnessMin"`
	LoudnessMax  float64 `json:"loudnessMax"`
	PulseRateMin float64 `json:"pulseRateMin"`
	PulseRateMax float64 `json:"pulseRateMax"`
	FrequencyMin float64 `json:"frequencyMin"`
	FrequencyMax float64 `json:"frequencyMax"`
	Seed         int64   `json:"seed"`

	Bounds    string `json:"bounds,omitempty"`    // none, clamp
	Frequency string `json:"frequency,omitempty"` // reference, standard
	Move      string `json:"move,omitempty"`      // reference, classic

	Patience       int     `json:"patience,omitempty"`       // Stop after N generations without improvement (0 = disabled)
	Threshold      float64 `json:"threshold,omitempty"`      // Minimum relative improvement that resets patience
	TimeoutSeconds int     `json:"timeoutSeconds,omitempty"` // Wall-clock budget (0 = none)
	TraceEvery     int     `json:"traceEvery,omitempty"`     // Trace every N generations (0 = every generation)
}

// DefaultJobConfig reproduces the reference program: sphere objective,
// 20 bats, 1000 generations, 10 dimensions in [-2,2].
func DefaultJobConfig() JobConfig {
	def := bat.DefaultConfig()
	return JobConfig{
		Objective:    "sphere",
		Dim:          def.Dim,
		Lower:        []float64{bat.DefaultLowerBound},
		Upper:        []float64{bat.DefaultUpperBound},
		PopSize:      def.PopSize,
		Iters:        def.Iterations,
		LoudnessMin:  def.LoudnessMin,
		LoudnessMax:  def.LoudnessMax,
		PulseRateMin: def.PulseRateMin,
		PulseRateMax: def.PulseRateMax,
		FrequencyMin: def.FrequencyMin,
		FrequencyMax: def.FrequencyMax,
		Seed:         42,
		Bounds:       "none",
		Frequency:    "reference",
		Move:         string(bat.ReferenceMove),
	}
}

// LoadJobConfig reads a JSON config file. Fields absent from the file keep
// their DefaultJobConfig values.
func LoadJobConfig(path string) (JobConfig, error) {
	config := DefaultJobConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return config, nil
}

// ExpandBounds broadcasts single-value bounds to dim components.
// Empty input yields nil so callers can fall back to objective defaults.
func ExpandBounds(v []float64, dim int) ([]float64, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 1:
		out := make([]float64, dim)
		for i := range out {
			out[i] = v[0]
		}
		return out, nil
	case dim:
		return append([]float64(nil), v...), nil
	default:
		return nil, &ValidationError{
			Field:  "Bounds",
			Reason: fmt.Sprintf("expected 1 or %d values, got %d", dim, len(v)),
		}
	}
}

// RunRecord is the persisted outcome of a completed run.
type RunRecord struct {
	// RunID is the unique identifier of the run
	RunID string `json:"runId"`

	// Config is the configuration the run was started with
	Config JobConfig `json:"config"`

	// BestPosition and BestFitness are the global best at the end of the run
	BestPosition []float64 `json:"bestPosition"`
	BestFitness  float64   `json:"bestFitness"`

	// InitialFitness is the best fitness right after initialization
	InitialFitness float64 `json:"initialFitness"`

	// Evaluations counts objective calls in the generation loop
	Evaluations int `json:"evaluations"`

	// Generations completed (less than Config.Iters when stopped early)
	Generations int `json:"generations"`

	// Stopped names the reason the run ended early ("converged", "budget")
	Stopped string `json:"stopped,omitempty"`

	ElapsedSeconds float64   `json:"elapsedSeconds"`
	Timestamp      time.Time `json:"timestamp"`
}

// RunInfo contains metadata about a run without the position vector.
// Used for listing runs efficiently.
type RunInfo struct {
	RunID       string    `json:"runId"`
	Objective   string    `json:"objective"`
	Dim         int       `json:"dim"`
	BestFitness float64   `json:"bestFitness"`
	Evaluations int       `json:"evaluations"`
	Generations int       `json:"generations"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunRecord creates a record stamped with the current time.
func NewRunRecord(runID string, config JobConfig, bestPosition []float64, bestFitness, initialFitness float64, evaluations, generations int) *RunRecord {
	return &RunRecord{
		RunID:          runID,
		Config:         config,
		BestPosition:   bestPosition,
		BestFitness:    bestFitness,
		InitialFitness: initialFitness,
		Evaluations:    evaluations,
		Generations:    generations,
		Timestamp:      time.Now(),
	}
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:       r.RunID,
		Objective:   r.Config.Objective,
		Dim:         r.Config.Dim,
		BestFitness: r.BestFitness,
		Evaluations: r.Evaluations,
		Generations: r.Generations,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks if the record has valid data.
// Returns a *ValidationError naming the first invalid field.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.BestPosition) == 0 {
		return &ValidationError{Field: "BestPosition", Reason: "cannot be empty"}
	}
	if len(r.BestPosition) != r.Config.Dim {
		return &ValidationError{
			Field:  "BestPosition",
			Reason: fmt.Sprintf("length %d does not match dim %d", len(r.BestPosition), r.Config.Dim),
		}
	}
	// JSON cannot encode NaN or Inf
	if math.IsNaN(r.BestFitness) || math.IsInf(r.BestFitness, 0) {
		return &ValidationError{Field: "BestFitness", Reason: "must be finite"}
	}
	if math.IsNaN(r.InitialFitness) || math.IsInf(r.InitialFitness, 0) {
		return &ValidationError{Field: "InitialFitness", Reason: "must be finite"}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if r.Generations < 0 {
		return &ValidationError{Field: "Generations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.Objective == "" {
		return &ValidationError{Field: "Config.Objective", Reason: "cannot be empty"}
	}
	if r.Config.PopSize <= 0 {
		return &ValidationError{Field: "Config.PopSize", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
