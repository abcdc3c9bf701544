package journey

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the engines and stores.
var (
	// ErrNotTracked is returned when an operation requires prior history
	// for a user who has no journey record.
	ErrNotTracked = errors.New("user has no journey record")

	// ErrStabilityAlreadyCounted is returned when a stability day is
	// counted twice for the same calendar day.
	ErrStabilityAlreadyCounted = errors.New("stability already counted for this day")

	// ErrTerminalStage is returned when advancing from the terminal stage.
	ErrTerminalStage = errors.New("stage is terminal")
)

// ValidationError reports a rejected input: an unrecognized stage, an
// out-of-range override value, or an unknown activation path strategy.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Check is one eligibility criterion with its current and required values.
type Check struct {
	Name     string  `json:"name"`
	Current  float64 `json:"current"`
	Required float64 `json:"required"`
	Met      bool    `json:"met"`
}

// NotEligibleError is the expected, recoverable failure when advance or
// graduate is attempted without force and criteria are unmet. Unmet
// carries the failing checks for the caller.
type NotEligibleError struct {
	Stage Stage
	Unmet []Check
}

func (e *NotEligibleError) Error() string {
	names := make([]string, 0, len(e.Unmet))
	for _, c := range e.Unmet {
		names = append(names, fmt.Sprintf("%s (%.0f/%.0f)", c.Name, c.Current, c.Required))
	}
	return fmt.Sprintf("not eligible at stage %s: unmet %s", e.Stage, strings.Join(names, ", "))
}

// IsNotEligible reports whether err is a NotEligibleError.
func IsNotEligible(err error) bool {
	var ne *NotEligibleError
	return errors.As(err, &ne)
}
