package bat

import (
	"fmt"
	"math"
)

// Objective maps a position to a fitness value; lower is better.
// Implementations must not retain or modify x.
type Objective interface {
	Evaluate(x []float64) (float64, error)
}

// ObjectiveFunc adapts a fallible function to the Objective interface.
type ObjectiveFunc func(x []float64) (float64, error)

func (f ObjectiveFunc) Evaluate(x []float64) (float64, error) { return f(x) }

// Func adapts a plain objective that cannot fail.
type Func func(x []float64) float64

func (f Func) Evaluate(x []float64) (float64, error) { return f(x), nil }

// FrequencyRule draws a bat's frequency from the configured range and a
// uniform sample u in [0,1).
type FrequencyRule func(qmin, qmax, u float64) float64

// ReferenceFrequency is the literal rule of the reference program,
// qmin + (qmin-qmax)*u. It yields values in [2*qmin-qmax, qmin].
func ReferenceFrequency(qmin, qmax, u float64) float64 {
	return qmin + (qmin-qmax)*u
}

// StandardFrequency draws uniformly from [qmin, qmax).
func StandardFrequency(qmin, qmax, u float64) float64 {
	return qmin + (qmax-qmin)*u
}

// FrequencyRuleByName resolves "reference" (default when empty) or "standard".
func FrequencyRuleByName(name string) (FrequencyRule, error) {
	switch name {
	case "", "reference":
		return ReferenceFrequency, nil
	case "standard":
		return StandardFrequency, nil
	default:
		return nil, &ConfigError{Field: "Frequency", Reason: fmt.Sprintf("unknown rule %q", name)}
	}
}

// BoundsPolicy corrects a position against the box [lower, upper].
// It may modify x in place and return it, or return a new slice of the
// same length.
type BoundsPolicy func(x, lower, upper []float64) ([]float64, error)

// NoBounds returns x unchanged; positions may drift outside the box.
func NoBounds(x, lower, upper []float64) ([]float64, error) {
	return x, nil
}

// Clamp projects every component of x into [lower[j], upper[j]].
func Clamp(x, lower, upper []float64) ([]float64, error) {
	for j := range x {
		x[j] = clamp(x[j], lower[j], upper[j])
	}
	return x, nil
}

// BoundsPolicyByName resolves "none" (default when empty) or "clamp".
func BoundsPolicyByName(name string) (BoundsPolicy, error) {
	switch name {
	case "", "none":
		return NoBounds, nil
	case "clamp":
		return Clamp, nil
	default:
		return nil, &ConfigError{Field: "Bounds", Reason: fmt.Sprintf("unknown policy %q", name)}
	}
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, val))
}

// MoveRule selects the ordering of the per-bat update.
type MoveRule string

const (
	// ReferenceMove perturbs and re-evaluates the current position and adopts
	// the velocity candidate only on acceptance, as the reference program does.
	ReferenceMove MoveRule = "reference"

	// ClassicMove bounds the velocity candidate, optionally replaces it with a
	// local walk around the best, and evaluates the candidate itself.
	ClassicMove MoveRule = "classic"
)

// ParseMoveRule resolves a rule name; the empty string means ReferenceMove.
func ParseMoveRule(name string) (MoveRule, error) {
	switch MoveRule(name) {
	case "", ReferenceMove:
		return ReferenceMove, nil
	case ClassicMove:
		return ClassicMove, nil
	default:
		return "", &ConfigError{Field: "Move", Reason: fmt.Sprintf("unknown rule %q", name)}
	}
}
