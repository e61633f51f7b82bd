package bat

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to classify failures returned by New and Run.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrEvaluatorFailure     = errors.New("objective evaluation failed")
	ErrBoundsPolicyFailure  = errors.New("bounds policy failed")
	ErrAlreadyRun           = errors.New("optimizer already run")

	// ErrStop may be returned by an Observer to end a run early. The run
	// then completes normally with Result.Stopped set.
	ErrStop = errors.New("stop requested")
)

// ConfigError describes a rejected configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// Stage names the part of a bat update that failed.
type Stage string

const (
	StageInit     Stage = "init"
	StageEvaluate Stage = "evaluate"
	StageBounds   Stage = "bounds"
	StageObserve  Stage = "observe"
	StageCancel   Stage = "cancel"
)

// RunError reports where a run was aborted.
// Generation is 0 during initialization and 1..MAX inside the loop;
// Bat is -1 when the failure is not tied to a single bat.
type RunError struct {
	Generation int
	Bat        int
	Stage      Stage
	Err        error
}

func (e *RunError) Error() string {
	if e.Bat < 0 {
		return fmt.Sprintf("run aborted at generation %d (%s): %v", e.Generation, e.Stage, e.Err)
	}
	return fmt.Sprintf("run aborted at generation %d, bat %d (%s): %v", e.Generation, e.Bat, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func (e *RunError) Is(target error) bool {
	switch target {
	case ErrEvaluatorFailure:
		return e.Stage == StageInit || e.Stage == StageEvaluate
	case ErrBoundsPolicyFailure:
		return e.Stage == StageBounds
	}
	return false
}
