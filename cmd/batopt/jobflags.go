package main

import (
	"github.com/spf13/pflag"

	"github.com/cwbudde/batopt/internal/store"
)

// jobFlags binds a JobConfig to command-line flags. Explicitly set flags
// override the --config file, which overrides the defaults.
type jobFlags struct {
	configPath string
	values     store.JobConfig
	timeout    int
}

func (jf *jobFlags) register(fs *pflag.FlagSet) {
	def := store.DefaultJobConfig()
	v := &jf.values

	fs.StringVar(&jf.configPath, "config", "", "JSON job config file")

	fs.StringVar(&v.Objective, "objective", def.Objective, "Objective function (sphere, rastrigin, rosenbrock, ackley, styblinski-tang)")
	fs.IntVar(&v.Dim, "dim", def.Dim, "Number of dimensions")
	fs.Float64SliceVar(&v.Lower, "lower", def.Lower, "Lower bound, one value or one per dimension")
	fs.Float64SliceVar(&v.Upper, "upper", def.Upper, "Upper bound, one value or one per dimension")
	fs.IntVar(&v.PopSize, "pop", def.PopSize, "Population size")
	fs.IntVar(&v.Iters, "iters", def.Iters, "Number of generations")
	fs.Float64Var(&v.LoudnessMin, "loudness-min", def.LoudnessMin, "Minimum loudness")
	fs.Float64Var(&v.LoudnessMax, "loudness-max", def.LoudnessMax, "Maximum loudness")
	fs.Float64Var(&v.PulseRateMin, "pulse-min", def.PulseRateMin, "Minimum pulse rate")
	fs.Float64Var(&v.PulseRateMax, "pulse-max", def.PulseRateMax, "Maximum pulse rate")
	fs.Float64Var(&v.FrequencyMin, "freq-min", def.FrequencyMin, "Minimum frequency")
	fs.Float64Var(&v.FrequencyMax, "freq-max", def.FrequencyMax, "Maximum frequency")
	fs.Int64Var(&v.Seed, "seed", def.Seed, "Random seed")
	fs.StringVar(&v.Bounds, "bounds", def.Bounds, "Bounds policy (none, clamp)")
	fs.StringVar(&v.Frequency, "frequency", def.Frequency, "Frequency rule (reference, standard)")
	fs.StringVar(&v.Move, "move", def.Move, "Move rule (reference, classic)")
	fs.IntVar(&v.Patience, "patience", 0, "Stop after N generations without improvement (0 = disabled)")
	fs.Float64Var(&v.Threshold, "threshold", 0, "Minimum relative improvement that resets patience")
	fs.IntVar(&jf.timeout, "timeout", 0, "Wall-clock budget in seconds (0 = none)")
	fs.IntVar(&v.TraceEvery, "trace-every", 0, "Trace every N generations (0 = every generation)")
}

// resolve builds the effective config from defaults, the config file and
// the flags the user actually set.
func (jf *jobFlags) resolve(fs *pflag.FlagSet) (store.JobConfig, error) {
	cfg := store.DefaultJobConfig()
	if jf.configPath != "" {
		loaded, err := store.LoadJobConfig(jf.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *pflag.Flag) {
		jf.apply(&cfg, f.Name)
	})
	return cfg, nil
}

// apply copies one flag's value into cfg; other commands' flags are ignored.
func (jf *jobFlags) apply(cfg *store.JobConfig, name string) {
	v := jf.values
	switch name {
	case "objective":
		cfg.Objective = v.Objective
	case "dim":
		cfg.Dim = v.Dim
	case "lower":
		cfg.Lower = v.Lower
	case "upper":
		cfg.Upper = v.Upper
	case "pop":
		cfg.PopSize = v.PopSize
	case "iters":
		cfg.Iters = v.Iters
	case "loudness-min":
		cfg.LoudnessMin = v.LoudnessMin
	case "loudness-max":
		cfg.LoudnessMax = v.LoudnessMax
	case "pulse-min":
		cfg.PulseRateMin = v.PulseRateMin
	case "pulse-max":
		cfg.PulseRateMax = v.PulseRateMax
	case "freq-min":
		cfg.FrequencyMin = v.FrequencyMin
	case "freq-max":
		cfg.FrequencyMax = v.FrequencyMax
	case "seed":
		cfg.Seed = v.Seed
	case "bounds":
		cfg.Bounds = v.Bounds
	case "frequency":
		cfg.Frequency = v.Frequency
	case "move":
		cfg.Move = v.Move
	case "patience":
		cfg.Patience = v.Patience
	case "threshold":
		cfg.Threshold = v.Threshold
	case "timeout":
		cfg.TimeoutSeconds = jf.timeout
	case "trace-every":
		cfg.TraceEvery = v.TraceEvery
	}
}
