package stage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
	"github.com/fyrsmithlabs/journeyd/internal/trust"
)

const instrumentationName = "github.com/fyrsmithlabs/journeyd/internal/stage"

// ActivationChecker reports Observer→Grower activation eligibility.
// The trust scorer implements it; the engine only needs this one method.
type ActivationChecker interface {
	EvaluateActivation(ctx context.Context, userID string, in trust.ActivationInput) (*trust.ActivationResult, error)
}

// Progress describes a user's current position in the lifecycle.
type Progress struct {
	UserID      string        `json:"user_id"`
	Stage       journey.Stage `json:"stage"`
	Label       string        `json:"label"`
	DaysInStage int           `json:"days_in_stage"`

	// Stability fields are populated only in StageStability.
	StabilityDays     int     `json:"stability_days,omitempty"`
	StabilityRequired int     `json:"stability_required,omitempty"`
	StabilityPercent  float64 `json:"stability_percent,omitempty"`

	GraduatedAt *time.Time `json:"graduated_at,omitempty"`
}

// Eligibility is the result of an advance eligibility check.
type Eligibility struct {
	UserID   string          `json:"user_id"`
	Stage    journey.Stage   `json:"stage"`
	Eligible bool            `json:"eligible"`
	Terminal bool            `json:"terminal"`
	Checks   []journey.Check `json:"checks"`
}

// StabilityResult reports the outcome of a stability-day update.
type StabilityResult struct {
	UserID string `json:"user_id"`

	// Counted is false when the user is outside StageStability; the
	// update is then a no-op rather than an error so batch jobs can
	// iterate whole cohorts.
	Counted bool `json:"counted"`

	StabilityDays     int `json:"stability_days"`
	StabilityRequired int `json:"stability_required"`
}

// Engine drives lifecycle transitions.
type Engine struct {
	cfg        *Config
	store      journey.Store
	activation ActivationChecker
	logger     *zap.Logger
	now        func() time.Time

	tracer             trace.Tracer
	meter              metric.Meter
	advanceCounter     metric.Int64Counter
	interruptCounter   metric.Int64Counter
	graduationCounter  metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithActivationChecker wires the trust scorer's activation evaluation.
func WithActivationChecker(c ActivationChecker) Option {
	return func(e *Engine) { e.activation = c }
}

// NewEngine creates a stage engine. cfg may be nil for defaults; logger
// may be nil for a nop logger.
func NewEngine(cfg *Config, store journey.Store, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage config: %w", err)
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    time.Now,
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.initMetrics()
	return e, nil
}

func (e *Engine) initMetrics() {
	var err error
	e.advanceCounter, err = e.meter.Int64Counter(
		"journeyd.stage.advances_total",
		metric.WithDescription("Total number of forward stage transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		e.logger.Warn("failed to create advance counter", zap.Error(err))
	}
	e.interruptCounter, err = e.meter.Int64Counter(
		"journeyd.stage.interruptions_total",
		metric.WithDescription("Total number of interruption regressions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		e.logger.Warn("failed to create interruption counter", zap.Error(err))
	}
	e.graduationCounter, err = e.meter.Int64Counter(
		"journeyd.stage.graduations_total",
		metric.WithDescription("Total number of graduations"),
		metric.WithUnit("{graduation}"),
	)
	if err != nil {
		e.logger.Warn("failed to create graduation counter", zap.Error(err))
	}
}

// daysIn returns full elapsed days since the current stage was entered.
func (e *Engine) daysIn(rec *journey.Record, now time.Time) int {
	d := int(now.Sub(rec.StageEnteredAt).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// eligibilityChecks evaluates the advance gates for the current stage.
func (e *Engine) eligibilityChecks(rec *journey.Record, now time.Time) []journey.Check {
	rule := e.cfg.Rules[rec.Stage]
	days := e.daysIn(rec, now)

	checks := []journey.Check{{
		Name:     "days_in_stage",
		Current:  float64(days),
		Required: float64(rule.MinDays),
		Met:      days >= rule.MinDays,
	}}

	if rec.Stage == journey.StageStability {
		required := e.cfg.stabilityRequired()
		checks = append(checks, journey.Check{
			Name:     "stability_days",
			Current:  float64(rec.StabilityDays),
			Required: float64(required),
			Met:      rec.StabilityDays >= required,
		})
	}
	return checks
}

func unmetOf(checks []journey.Check) []journey.Check {
	var unmet []journey.Check
	for _, c := range checks {
		if !c.Met {
			unmet = append(unmet, c)
		}
	}
	return unmet
}

// GetProgress returns the user's current lifecycle position, lazily
// creating the record on first access.
func (e *Engine) GetProgress(ctx context.Context, userID string) (*Progress, error) {
	ctx, span := e.tracer.Start(ctx, "stage.get_progress")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	rec, err := e.store.GetOrCreate(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := e.now()
	p := &Progress{
		UserID:      userID,
		Stage:       rec.Stage,
		Label:       rec.Stage.String(),
		DaysInStage: e.daysIn(rec, now),
		GraduatedAt: rec.GraduatedAt,
	}
	if rec.Stage == journey.StageStability {
		required := e.cfg.stabilityRequired()
		p.StabilityDays = rec.StabilityDays
		p.StabilityRequired = required
		p.StabilityPercent = float64(rec.StabilityDays) / float64(required) * 100
		if p.StabilityPercent > 100 {
			p.StabilityPercent = 100
		}
	}
	return p, nil
}

// CheckAdvanceEligibility evaluates the day and stability gates without
// mutating anything.
func (e *Engine) CheckAdvanceEligibility(ctx context.Context, userID string) (*Eligibility, error) {
	ctx, span := e.tracer.Start(ctx, "stage.check_advance")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	rec, err := e.store.GetOrCreate(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if rec.Stage.Terminal() {
		return &Eligibility{UserID: userID, Stage: rec.Stage, Terminal: true}, nil
	}

	checks := e.eligibilityChecks(rec, e.now())
	return &Eligibility{
		UserID:   userID,
		Stage:    rec.Stage,
		Eligible: len(unmetOf(checks)) == 0,
		Checks:   checks,
	}, nil
}

// Advance moves the user exactly one ordinal step forward. Without
// force it fails with NotEligibleError when gating criteria are unmet;
// force bypasses eligibility but never adjacency. Entering S4 resets
// stability tracking; entering S5 sets the graduation timestamp.
func (e *Engine) Advance(ctx context.Context, userID, reason, actor string, force bool) (*journey.Record, error) {
	ctx, span := e.tracer.Start(ctx, "stage.advance")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Bool("force", force),
	)

	now := e.now()
	var from, to journey.Stage

	rec, err := e.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		if rec.Stage.Terminal() {
			return journey.ErrTerminalStage
		}

		checks := e.eligibilityChecks(rec, now)
		if unmet := unmetOf(checks); len(unmet) > 0 && !force {
			return &journey.NotEligibleError{Stage: rec.Stage, Unmet: unmet}
		}

		from = rec.Stage
		next, _ := rec.Stage.Next()
		to = next
		daysInStage := e.daysIn(rec, now)

		e.applyTransition(rec, next, now)

		return e.commitTransition(rec, uow, &journey.Transition{
			ID:     uuid.New().String(),
			UserID: userID,
			From:   from,
			To:     to,
			Kind:   journey.TransitionAdvance,
			Reason: reason,
			Actor:  actor,
			Evidence: map[string]string{
				"days_in_stage": strconv.Itoa(daysInStage),
				"force":         strconv.FormatBool(force),
			},
			CreatedAt: now,
		}, now)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if e.advanceCounter != nil {
		e.advanceCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("to_stage", to.String()),
			attribute.Bool("force", force),
		))
	}
	e.logger.Info("stage advanced",
		zap.String("user_id", userID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Bool("force", force),
	)
	return rec, nil
}

// applyTransition moves the record to the target stage and maintains the
// stability and graduation bookkeeping tied to stage boundaries.
func (e *Engine) applyTransition(rec *journey.Record, target journey.Stage, now time.Time) {
	leavingStability := rec.Stage == journey.StageStability

	rec.Stage = target
	rec.StageEnteredAt = now
	rec.TransitionCount++

	// Stability tracking exists only inside S4: reset it both when the
	// window starts and when the stage is exited by any route.
	if target == journey.StageStability || leavingStability {
		rec.StabilityDays = 0
		rec.StabilityStart = nil
		rec.StabilityCountedOn = ""
	}

	if target == journey.StageGraduation && rec.GraduatedAt == nil {
		t := now
		rec.GraduatedAt = &t
	}
}

// commitTransition appends the audit entry and syncs the cache snapshot
// inside the caller's unit of work.
func (e *Engine) commitTransition(rec *journey.Record, uow journey.UnitOfWork, t *journey.Transition, now time.Time) error {
	if err := uow.AppendTransition(t); err != nil {
		return err
	}
	return uow.UpsertSnapshot(journey.SnapshotFrom(rec, now))
}

// RecordInterruption regresses the user after a life interruption.
// Permitted only from S2 onward; defaults to a one-stage regression.
// Exiting S4 resets the stability window.
func (e *Engine) RecordInterruption(ctx context.Context, userID, reason, actor string, regressTo *journey.Stage) (*journey.Record, error) {
	ctx, span := e.tracer.Start(ctx, "stage.record_interruption")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	now := e.now()
	var from, to journey.Stage

	rec, err := e.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		if rec.Stage < journey.StageActivation {
			return &journey.ValidationError{
				Field:  "stage",
				Reason: fmt.Sprintf("interruption requires stage %s or later, user is at %s", journey.StageActivation, rec.Stage),
			}
		}

		target := rec.Stage - 1
		if regressTo != nil {
			if !regressTo.Valid() || *regressTo >= rec.Stage {
				return &journey.ValidationError{
					Field:  "regress_to",
					Reason: fmt.Sprintf("target %v must be a stage below %s", *regressTo, rec.Stage),
				}
			}
			target = *regressTo
		}

		from = rec.Stage
		to = target

		e.applyTransition(rec, target, now)
		rec.InterruptionCount++

		return e.commitTransition(rec, uow, &journey.Transition{
			ID:        uuid.New().String(),
			UserID:    userID,
			From:      from,
			To:        to,
			Kind:      journey.TransitionInterruption,
			Reason:    reason,
			Actor:     actor,
			CreatedAt: now,
		}, now)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if e.interruptCounter != nil {
		e.interruptCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("from_stage", from.String())))
	}
	e.logger.Info("interruption recorded",
		zap.String("user_id", userID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("reason", reason),
	)
	return rec, nil
}

// UpdateStability counts qualifying stability days while the user is in
// S4. It must run at most once per elapsed day per user: a second call
// on the same calendar day fails with ErrStabilityAlreadyCounted.
// Outside S4 the call is a counted=false no-op.
func (e *Engine) UpdateStability(ctx context.Context, userID string, days int) (*StabilityResult, error) {
	ctx, span := e.tracer.Start(ctx, "stage.update_stability")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	if days <= 0 {
		days = 1
	}
	now := e.now()
	result := &StabilityResult{UserID: userID, StabilityRequired: e.cfg.stabilityRequired()}

	_, err := e.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		if rec.Stage != journey.StageStability {
			result.StabilityDays = rec.StabilityDays
			return nil
		}

		day := journey.DayKey(now)
		if rec.StabilityCountedOn == day {
			return journey.ErrStabilityAlreadyCounted
		}

		if rec.StabilityStart == nil {
			t := now
			rec.StabilityStart = &t
		}
		rec.StabilityDays += days
		rec.StabilityCountedOn = day

		result.Counted = true
		result.StabilityDays = rec.StabilityDays
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// Graduate completes the journey. Allowed from S4 (requires the
// stability window, auto-advancing to S5) or from S5. A user who was
// never tracked cannot graduate. Repeated calls on an already graduated
// user are an idempotent success.
func (e *Engine) Graduate(ctx context.Context, userID string) (*journey.Record, error) {
	ctx, span := e.tracer.Start(ctx, "stage.graduate")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	// Graduation inherently requires history: no lazy creation here.
	if _, err := e.store.Get(ctx, userID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("cannot graduate %s: %w", userID, err)
	}

	now := e.now()
	graduated := false

	rec, err := e.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		if rec.GraduatedAt != nil {
			return nil
		}

		switch rec.Stage {
		case journey.StageStability:
			required := e.cfg.stabilityRequired()
			if rec.StabilityDays < required {
				return &journey.NotEligibleError{
					Stage: rec.Stage,
					Unmet: []journey.Check{{
						Name:     "stability_days",
						Current:  float64(rec.StabilityDays),
						Required: float64(required),
					}},
				}
			}
		case journey.StageGraduation:
			// Entered S5 without a timestamp; repair below.
		default:
			return &journey.NotEligibleError{
				Stage: rec.Stage,
				Unmet: []journey.Check{{
					Name:     "stage",
					Current:  float64(rec.Stage),
					Required: float64(journey.StageStability),
				}},
			}
		}

		from := rec.Stage
		e.applyTransition(rec, journey.StageGraduation, now)
		graduated = true

		return e.commitTransition(rec, uow, &journey.Transition{
			ID:        uuid.New().String(),
			UserID:    userID,
			From:      from,
			To:        journey.StageGraduation,
			Kind:      journey.TransitionGraduation,
			Reason:    "stability window completed",
			Actor:     "system",
			CreatedAt: now,
		}, now)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if graduated {
		if e.graduationCounter != nil {
			e.graduationCounter.Add(ctx, 1)
		}
		e.logger.Info("user graduated", zap.String("user_id", userID))
	}
	return rec, nil
}

// CheckActivation evaluates Observer→Grower activation eligibility via
// the wired trust scorer. This feeds the activation surface only; the
// day-based advance gating never consults it.
func (e *Engine) CheckActivation(ctx context.Context, userID string, in trust.ActivationInput) (*trust.ActivationResult, error) {
	if e.activation == nil {
		return nil, errors.New("no activation checker configured")
	}
	return e.activation.EvaluateActivation(ctx, userID, in)
}
