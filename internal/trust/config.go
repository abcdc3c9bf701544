package trust

import (
	"fmt"
	"math"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

// Signal names consumed by the trust scorer.
const (
	SignalDialogContinuity    = "dialog_continuity"
	SignalSelfDisclosure      = "self_disclosure"
	SignalResponseConsistency = "response_consistency"
	SignalTaskFollowThrough   = "task_follow_through"
	SignalCuriosityExpression = "curiosity_expression"
	SignalRelationshipTenure  = "relationship_tenure"
)

// Activation path names.
const (
	PathCuriosity     = "curiosity"
	PathTime          = "time"
	PathCoachReferred = "coach_referred"
)

// ConversionSourceCoach marks a user referred into the program by a coach.
const ConversionSourceCoach = "coach_referred"

const weightTolerance = 1e-9

// Permissions is the behavior contract a trust level grants to the
// conversational agents consuming this core.
type Permissions struct {
	AllowAssessment       bool `json:"allow_assessment"`
	AllowDeepIntervention bool `json:"allow_deep_intervention"`
}

// Config is the immutable trust scorer configuration.
type Config struct {
	// Weights maps signal name to weight. Must sum to 1.0.
	Weights map[string]float64

	// NotEstablishedBelow is the exclusive upper bound of the lowest band.
	NotEstablishedBelow float64

	// EstablishedAbove is the exclusive lower bound of the highest band.
	// The building band is the closed interval between the two.
	EstablishedAbove float64

	// Contracts maps each level to its behavior contract.
	Contracts map[journey.TrustLevel]Permissions

	// Paths lists the enabled activation path strategies, evaluated in
	// order. Unknown names fail validation.
	Paths []string

	// CuriosityTarget is path A's curiosity_expression threshold.
	CuriosityTarget float64

	// TimeTrustTarget and TimeDialogTarget are path B's thresholds.
	TimeTrustTarget  float64
	TimeDialogTarget int

	// ReferredTrustTarget is path C's trust threshold.
	ReferredTrustTarget float64
}

// DefaultConfig returns the standard six-signal configuration with all
// three activation paths enabled.
func DefaultConfig() *Config {
	return &Config{
		Weights: map[string]float64{
			SignalDialogContinuity:    0.25,
			SignalSelfDisclosure:      0.20,
			SignalResponseConsistency: 0.15,
			SignalTaskFollowThrough:   0.15,
			SignalCuriosityExpression: 0.15,
			SignalRelationshipTenure:  0.10,
		},
		NotEstablishedBelow: 0.3,
		EstablishedAbove:    0.5,
		Contracts: map[journey.TrustLevel]Permissions{
			journey.TrustNotEstablished: {AllowAssessment: false, AllowDeepIntervention: false},
			journey.TrustBuilding:       {AllowAssessment: true, AllowDeepIntervention: false},
			journey.TrustEstablished:    {AllowAssessment: true, AllowDeepIntervention: true},
		},
		Paths:               []string{PathCuriosity, PathTime, PathCoachReferred},
		CuriosityTarget:     0.40,
		TimeTrustTarget:     0.60,
		TimeDialogTarget:    3,
		ReferredTrustTarget: 0.85,
	}
}

// Validate checks weight, threshold, and path consistency.
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
	if c.NotEstablishedBelow <= 0 || c.EstablishedAbove >= 1 || c.NotEstablishedBelow >= c.EstablishedAbove {
		return fmt.Errorf("thresholds must satisfy 0 < not_established_below < established_above < 1")
	}
	for _, level := range []journey.TrustLevel{journey.TrustNotEstablished, journey.TrustBuilding, journey.TrustEstablished} {
		if _, ok := c.Contracts[level]; !ok {
			return fmt.Errorf("behavior contract missing for level %s", level)
		}
	}
	for _, p := range c.Paths {
		switch p {
		case PathCuriosity, PathTime, PathCoachReferred:
		default:
			return &journey.ValidationError{
				Field:  "activation_path",
				Reason: fmt.Sprintf("unknown strategy %q", p),
			}
		}
	}
	return nil
}

// LevelFor maps a score onto its level. The three bands partition [0,1]:
// not_established below NotEstablishedBelow, building on the closed
// interval up to EstablishedAbove, established beyond it.
func (c *Config) LevelFor(score float64) journey.TrustLevel {
	switch {
	case score < c.NotEstablishedBelow:
		return journey.TrustNotEstablished
	case score <= c.EstablishedAbove:
		return journey.TrustBuilding
	default:
		return journey.TrustEstablished
	}
}

// ContractFor returns the behavior contract for a score's level.
func (c *Config) ContractFor(score float64) Permissions {
	return c.Contracts[c.LevelFor(score)]
}
