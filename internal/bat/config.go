// Package bat implements the Bat Algorithm, a population-based minimizer
// over a box-bounded real search space.
package bat

import "fmt"

// Config holds the immutable parameters of a single optimization run.
type Config struct {
	// PopSize is the number of bats (N)
	PopSize int `json:"popSize"`

	// Iterations is the number of generations (MAX). Zero is allowed and
	// returns the initialization-time best.
	Iterations int `json:"iterations"`

	// Loudness range [A_MIN, A_MAX]; the run uses the midpoint
	LoudnessMin float64 `json:"loudnessMin"`
	LoudnessMax float64 `json:"loudnessMax"`

	// Pulse-rate range [R_MIN, R_MAX]; the run uses the midpoint
	PulseRateMin float64 `json:"pulseRateMin"`
	PulseRateMax float64 `json:"pulseRateMax"`

	// Frequency range [Q_MIN, Q_MAX] handed to the FrequencyRule
	FrequencyMin float64 `json:"frequencyMin"`
	FrequencyMax float64 `json:"frequencyMax"`

	// Dim is the dimensionality D of the search space
	Dim int `json:"dim"`

	// Lower and Upper are the per-dimension box bounds, each of length Dim
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// Defaults used by the reference program.
const (
	DefaultPopSize    = 20
	DefaultIterations = 1000
	DefaultDim        = 10
	DefaultLowerBound = -2.0
	DefaultUpperBound = 2.0
)

// DefaultConfig returns the configuration of the reference program:
// 20 bats, 1000 generations, loudness and pulse rate in [0,1],
// frequency in [0,2], 10 dimensions bounded by [-2,2].
func DefaultConfig() Config {
	lower, upper := UniformBounds(DefaultDim, DefaultLowerBound, DefaultUpperBound)
	return Config{
		PopSize:      DefaultPopSize,
		Iterations:   DefaultIterations,
		LoudnessMin:  0,
		LoudnessMax:  1,
		PulseRateMin: 0,
		PulseRateMax: 1,
		FrequencyMin: 0,
		FrequencyMax: 2,
		Dim:          DefaultDim,
		Lower:        lower,
		Upper:        upper,
	}
}

// UniformBounds builds lower/upper vectors with the same range in every dimension.
func UniformBounds(dim int, lo, hi float64) (lower, upper []float64) {
	if dim < 0 {
		dim = 0
	}
	lower = make([]float64, dim)
	upper = make([]float64, dim)
	for j := 0; j < dim; j++ {
		lower[j] = lo
		upper[j] = hi
	}
	return lower, upper
}

// Loudness returns the constant loudness used for the run.
func (c Config) Loudness() float64 {
	return (c.LoudnessMin + c.LoudnessMax) / 2
}

// PulseRate returns the constant pulse rate used for the run.
func (c Config) PulseRate() float64 {
	return (c.PulseRateMin + c.PulseRateMax) / 2
}

// Validate reports the first configuration problem as a *ConfigError.
// Every returned error matches ErrInvalidConfiguration.
func (c Config) Validate() error {
	if c.PopSize <= 0 {
		return &ConfigError{Field: "PopSize", Reason: fmt.Sprintf("must be > 0 (got %d)", c.PopSize)}
	}
	if c.Iterations < 0 {
		return &ConfigError{Field: "Iterations", Reason: fmt.Sprintf("must be >= 0 (got %d)", c.Iterations)}
	}
	if c.Dim <= 0 {
		return &ConfigError{Field: "Dim", Reason: fmt.Sprintf("must be > 0 (got %d)", c.Dim)}
	}
	if c.LoudnessMin > c.LoudnessMax {
		return &ConfigError{Field: "Loudness", Reason: fmt.Sprintf("min %g > max %g", c.LoudnessMin, c.LoudnessMax)}
	}
	if c.PulseRateMin > c.PulseRateMax {
		return &ConfigError{Field: "PulseRate", Reason: fmt.Sprintf("min %g > max %g", c.PulseRateMin, c.PulseRateMax)}
	}
	if c.FrequencyMin > c.FrequencyMax {
		return &ConfigError{Field: "Frequency", Reason: fmt.Sprintf("min %g > max %g", c.FrequencyMin, c.FrequencyMax)}
	}
	if len(c.Lower) != c.Dim {
		return &ConfigError{Field: "Lower", Reason: fmt.Sprintf("length %d does not match dim %d", len(c.Lower), c.Dim)}
	}
	if len(c.Upper) != c.Dim {
		return &ConfigError{Field: "Upper", Reason: fmt.Sprintf("length %d does not match dim %d", len(c.Upper), c.Dim)}
	}
	for j := range c.Lower {
		if c.Lower[j] > c.Upper[j] {
			return &ConfigError{
				Field:  "Bounds",
				Reason: fmt.Sprintf("lower[%d]=%g > upper[%d]=%g", j, c.Lower[j], j, c.Upper[j]),
			}
		}
	}
	return nil
}
