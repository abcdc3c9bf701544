package stage

import (
	"fmt"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

// Rule is the per-stage gating configuration.
type Rule struct {
	// MinDays a user must spend in the stage before advancing.
	MinDays int

	// StabilityRequiredDays is the stability window length. Only
	// meaningful for StageStability.
	StabilityRequiredDays int
}

// Config is the immutable per-stage rule table, injected into the engine.
type Config struct {
	Rules map[journey.Stage]Rule
}

// DefaultConfig returns the standard gating table: a 90-day stability
// window and progressively longer minimum dwell times.
func DefaultConfig() *Config {
	return &Config{
		Rules: map[journey.Stage]Rule{
			journey.StageAuthorization: {MinDays: 1},
			journey.StageObservation:   {MinDays: 7},
			journey.StageActivation:    {MinDays: 14},
			journey.StagePractice:      {MinDays: 30},
			journey.StageStability:     {MinDays: 90, StabilityRequiredDays: 90},
			journey.StageGraduation:    {},
		},
	}
}

// Validate checks that every stage has a rule with sane values.
func (c *Config) Validate() error {
	for s := journey.StageAuthorization; s <= journey.StageGraduation; s++ {
		rule, ok := c.Rules[s]
		if !ok {
			return fmt.Errorf("missing rule for stage %s", s)
		}
		if rule.MinDays < 0 || rule.StabilityRequiredDays < 0 {
			return fmt.Errorf("negative gating values for stage %s", s)
		}
	}
	if c.Rules[journey.StageStability].StabilityRequiredDays == 0 {
		return fmt.Errorf("stability stage requires a stability window")
	}
	return nil
}

// stabilityRequired returns the configured stability window length.
func (c *Config) stabilityRequired() int {
	return c.Rules[journey.StageStability].StabilityRequiredDays
}
