package scoring

import (
	"fmt"
	"math"
)

// Weights is the fixed convex combination applied to the five sub-scores.
type Weights struct {
	SkillMatch   float64
	Proximity    float64
	Availability float64
	Workload     float64
	Performance  float64
}

// DefaultWeights returns the production weight set. Each call yields a fresh
// value.
func DefaultWeights() Weights {
	return Weights{
		SkillMatch:   0.30,
		Proximity:    0.25,
		Availability: 0.20,
		Workload:     0.15,
		Performance:  0.10,
	}
}

const weightTolerance = 1e-9

// ConfigurationError is fatal: the process must not start with invalid weights.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "scoring configuration: " + e.Reason
}

func (w Weights) Sum() float64 {
	return w.SkillMatch + w.Proximity + w.Availability + w.Workload + w.Performance
}

func (w Weights) Validate() error {
	named := []struct {
		name  string
		value float64
	}{
		{"skill_match", w.SkillMatch},
		{"proximity", w.Proximity},
		{"availability", w.Availability},
		{"workload", w.Workload},
		{"performance", w.Performance},
	}
	for _, n := range named {
		if n.value < 0 || math.IsNaN(n.value) {
			return &ConfigurationError{Reason: fmt.Sprintf("weight %s must be non-negative, got %v", n.name, n.value)}
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return &ConfigurationError{Reason: fmt.Sprintf("weights must sum to 1.0, got %.10f", sum)}
	}
	return nil
}
