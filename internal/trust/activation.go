package trust

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

// ActivationInput carries the conversion metadata supplied by the caller
// alongside the stored trust state.
type ActivationInput struct {
	// DialogCount is the number of completed dialogs with the user.
	DialogCount int `json:"dialog_count"`

	// ConversionSource records how the user entered the program.
	ConversionSource string `json:"conversion_source"`
}

// PathStatus reports one activation path's progress.
type PathStatus struct {
	Path    string  `json:"path"`
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
	Met     bool    `json:"met"`
}

// ActivationResult is the outcome of an Observer→Grower eligibility
// evaluation: eligible when any path is met.
type ActivationResult struct {
	UserID   string       `json:"user_id"`
	Eligible bool         `json:"eligible"`
	Paths    []PathStatus `json:"paths"`
}

// EvaluateActivation checks the enabled activation paths against the
// user's stored trust state. The record is lazily created, so a brand
// new user evaluates against zeroed scores rather than erroring.
func (s *Scorer) EvaluateActivation(ctx context.Context, userID string, in ActivationInput) (*ActivationResult, error) {
	ctx, span := s.tracer.Start(ctx, "trust.evaluate_activation")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	rec, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &ActivationResult{UserID: userID}
	for _, name := range s.cfg.Paths {
		status, err := s.evaluatePath(name, rec, in)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.Paths = append(result.Paths, status)
		if status.Met {
			result.Eligible = true
		}
	}

	span.SetAttributes(attribute.Bool("eligible", result.Eligible))
	return result, nil
}

// evaluatePath dispatches one named path strategy.
func (s *Scorer) evaluatePath(name string, rec *journey.Record, in ActivationInput) (PathStatus, error) {
	switch name {
	case PathCuriosity:
		current := rec.TrustSignals[SignalCuriosityExpression]
		return PathStatus{
			Path:    PathCuriosity,
			Current: current,
			Target:  s.cfg.CuriosityTarget,
			Met:     current >= s.cfg.CuriosityTarget,
		}, nil

	case PathTime:
		// Both conditions must hold; the reported metric is the trust
		// score, the dialog floor gates the met flag.
		met := rec.TrustScore >= s.cfg.TimeTrustTarget && in.DialogCount >= s.cfg.TimeDialogTarget
		return PathStatus{
			Path:    PathTime,
			Current: rec.TrustScore,
			Target:  s.cfg.TimeTrustTarget,
			Met:     met,
		}, nil

	case PathCoachReferred:
		met := in.ConversionSource == ConversionSourceCoach && rec.TrustScore >= s.cfg.ReferredTrustTarget
		return PathStatus{
			Path:    PathCoachReferred,
			Current: rec.TrustScore,
			Target:  s.cfg.ReferredTrustTarget,
			Met:     met,
		}, nil

	default:
		return PathStatus{}, &journey.ValidationError{
			Field:  "activation_path",
			Reason: fmt.Sprintf("unknown strategy %q", name),
		}
	}
}
