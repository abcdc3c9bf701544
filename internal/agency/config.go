package agency

import (
	"fmt"
	"math"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

// Signal names consumed by the agency scorer.
const (
	SignalSelfInitiated    = "self_initiated_actions"
	SignalGoalSetting      = "goal_setting"
	SignalSelfReflection   = "self_reflection"
	SignalActiveExpression = "active_expression"
	SignalCoachDependency  = "coach_dependency"
	SignalAwarenessDepth   = "awareness_depth"
)

// weightTolerance bounds floating error when validating the weight sum.
const weightTolerance = 1e-9

// Config is the immutable scorer configuration. It is injected rather
// than read from package state so tests and future tuning can swap it
// without touching the scoring core.
type Config struct {
	// Weights maps signal name to weight. Must sum to 1.0.
	Weights map[string]float64

	// Inverted lists signals contributing as 1-value instead of value.
	Inverted map[string]bool

	// PassiveBelow is the exclusive upper bound of the passive band.
	PassiveBelow float64

	// ActiveAbove is the exclusive lower bound of the active band. The
	// transitional band is the closed interval between the two.
	ActiveAbove float64

	// OverrideScores maps each mode to its representative score, used
	// when a coach override replaces the computed score.
	OverrideScores map[journey.AgencyMode]float64
}

// DefaultConfig returns the standard six-signal configuration.
func DefaultConfig() *Config {
	return &Config{
		Weights: map[string]float64{
			SignalSelfInitiated:    0.25,
			SignalGoalSetting:      0.20,
			SignalSelfReflection:   0.20,
			SignalActiveExpression: 0.15,
			SignalCoachDependency:  0.10,
			SignalAwarenessDepth:   0.10,
		},
		Inverted:     map[string]bool{SignalCoachDependency: true},
		PassiveBelow: 0.3,
		ActiveAbove:  0.6,
		OverrideScores: map[journey.AgencyMode]float64{
			journey.AgencyPassive:      0.15,
			journey.AgencyTransitional: 0.45,
			journey.AgencyActive:       0.75,
		},
	}
}

// Validate checks weight and threshold consistency.
func (c *Config) Validate() error {
	if len(c.Weights) == 0 {
		return fmt.Errorf("weights are required")
	}
	sum := 0.0
	for name, w := range c.Weights {
		if w <= 0 || w > 1 {
			return fmt.Errorf("weight for %s out of range: %v", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	if c.PassiveBelow <= 0 || c.ActiveAbove >= 1 || c.PassiveBelow >= c.ActiveAbove {
		return fmt.Errorf("thresholds must satisfy 0 < passive_below < active_above < 1")
	}
	for _, mode := range []journey.AgencyMode{journey.AgencyPassive, journey.AgencyTransitional, journey.AgencyActive} {
		score, ok := c.OverrideScores[mode]
		if !ok {
			return fmt.Errorf("override score missing for mode %s", mode)
		}
		if score < 0 || score > 1 {
			return fmt.Errorf("override score for %s out of range: %v", mode, score)
		}
		if c.ModeFor(score) != mode {
			return fmt.Errorf("override score %v for %s maps to %s", score, mode, c.ModeFor(score))
		}
	}
	return nil
}

// ModeFor maps a score onto its mode. The three bands partition [0,1]:
// passive below PassiveBelow, transitional on the closed interval up to
// ActiveAbove, active beyond it.
func (c *Config) ModeFor(score float64) journey.AgencyMode {
	switch {
	case score < c.PassiveBelow:
		return journey.AgencyPassive
	case score <= c.ActiveAbove:
		return journey.AgencyTransitional
	default:
		return journey.AgencyActive
	}
}
