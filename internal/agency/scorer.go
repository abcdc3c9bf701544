package agency

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
	"github.com/fyrsmithlabs/journeyd/internal/signals"
)

const instrumentationName = "github.com/fyrsmithlabs/journeyd/internal/agency"

// Result is the outcome of one agency computation.
type Result struct {
	UserID string `json:"user_id"`

	// Score and Mode are the values stored on the record. While an
	// override is active they come from the override, not the signals.
	Score float64            `json:"score"`
	Mode  journey.AgencyMode `json:"mode"`

	// Signals holds the clamped raw inputs (pre-inversion).
	Signals map[string]float64 `json:"signals"`

	// Contributions holds weight × effective value per signal.
	Contributions map[string]float64 `json:"contributions"`

	// Overridden reports whether a coach override superseded the
	// computed values.
	Overridden bool `json:"overridden"`
}

// Scorer computes and persists agency scores.
type Scorer struct {
	cfg      *Config
	store    journey.Store
	provider signals.Provider
	logger   *zap.Logger
	now      func() time.Time

	tracer          trace.Tracer
	meter           metric.Meter
	computeCounter  metric.Int64Counter
	overrideCounter metric.Int64Counter
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the scorer's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates an agency scorer. cfg may be nil for defaults;
// logger may be nil for a nop logger.
func NewScorer(cfg *Config, store journey.Store, provider signals.Provider, logger *zap.Logger, opts ...Option) (*Scorer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agency config: %w", err)
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if provider == nil {
		return nil, errors.New("signal provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scorer{
		cfg:      cfg,
		store:    store,
		provider: provider,
		logger:   logger,
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.initMetrics()
	return s, nil
}

func (s *Scorer) initMetrics() {
	var err error
	s.computeCounter, err = s.meter.Int64Counter(
		"journeyd.agency.computations_total",
		metric.WithDescription("Total number of agency score computations"),
		metric.WithUnit("{computation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create computation counter", zap.Error(err))
	}
	s.overrideCounter, err = s.meter.Int64Counter(
		"journeyd.agency.overrides_total",
		metric.WithDescription("Total number of coach override changes"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		s.logger.Warn("failed to create override counter", zap.Error(err))
	}
}

// Compute fetches the user's signals, aggregates the weighted score, and
// persists record, audit entries, and cache snapshot in one unit of work.
func (s *Scorer) Compute(ctx context.Context, userID string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "agency.compute")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	raw, err := s.provider.Signals(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch signals: %w", err)
	}

	inputs, contributions, score := s.aggregate(raw)
	mode := s.cfg.ModeFor(score)
	now := s.now()

	result := &Result{
		UserID:        userID,
		Score:         score,
		Mode:          mode,
		Signals:       inputs,
		Contributions: contributions,
	}

	_, err = s.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		rec.AgencySignals = inputs

		if rec.CoachOverride != nil {
			// Override supersedes the computed values for all consumers.
			result.Overridden = true
			result.Mode = *rec.CoachOverride
			result.Score = s.cfg.OverrideScores[*rec.CoachOverride]
		} else {
			rec.AgencyMode = mode
			rec.AgencyScore = score
		}

		if err := uow.AppendSignals(s.auditEntries(userID, inputs, contributions, score, "computed", now)); err != nil {
			return err
		}
		return uow.UpsertSnapshot(journey.SnapshotFrom(rec, now))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.computeCounter != nil {
		s.computeCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("overridden", result.Overridden),
		))
	}
	s.logger.Debug("computed agency score",
		zap.String("user_id", userID),
		zap.Float64("score", result.Score),
		zap.String("mode", string(result.Mode)),
		zap.Bool("overridden", result.Overridden),
	)

	span.SetAttributes(attribute.Float64("score", result.Score))
	return result, nil
}

// aggregate clamps raw inputs, applies inversion and weights, and
// returns (inputs, contributions, clamped score). Missing signals
// default to 0.
func (s *Scorer) aggregate(raw map[string]float64) (map[string]float64, map[string]float64, float64) {
	inputs := make(map[string]float64, len(s.cfg.Weights))
	contributions := make(map[string]float64, len(s.cfg.Weights))

	sum := 0.0
	for name, weight := range s.cfg.Weights {
		v := signals.Clamp(raw[name])
		inputs[name] = v

		effective := v
		if s.cfg.Inverted[name] {
			effective = 1 - v
		}
		c := weight * effective
		contributions[name] = c
		sum += c
	}
	return inputs, contributions, signals.Clamp(sum)
}

// auditEntries builds the per-signal rows plus the composite row for one
// computation.
func (s *Scorer) auditEntries(userID string, inputs, contributions map[string]float64, score float64, source string, now time.Time) []*journey.SignalEntry {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*journey.SignalEntry, 0, len(names)+1)
	for _, name := range names {
		entries = append(entries, &journey.SignalEntry{
			ID:           uuid.New().String(),
			UserID:       userID,
			Scorer:       journey.ScorerAgency,
			Name:         name,
			Raw:          inputs[name],
			Weight:       s.cfg.Weights[name],
			Contribution: contributions[name],
			Aggregate:    score,
			Source:       source,
			CreatedAt:    now,
		})
	}
	entries = append(entries, &journey.SignalEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Scorer:    journey.ScorerAgency,
		Name:      journey.CompositeSignal,
		Raw:       score,
		Weight:    1,
		Aggregate: score,
		Source:    source,
		CreatedAt: now,
	})
	return entries
}

// SetOverride installs a coach override. The override is ternary: one of
// the three modes, stored with its fixed representative score. Unknown
// modes are rejected, not clamped.
func (s *Scorer) SetOverride(ctx context.Context, userID string, mode journey.AgencyMode) (*journey.Record, error) {
	ctx, span := s.tracer.Start(ctx, "agency.set_override")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("mode", string(mode)),
	)

	if !mode.Valid() {
		return nil, &journey.ValidationError{
			Field:  "coach_agency_override",
			Reason: fmt.Sprintf("unknown mode %q", mode),
		}
	}

	score := s.cfg.OverrideScores[mode]
	now := s.now()

	rec, err := s.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		rec.CoachOverride = &mode
		rec.AgencyMode = mode
		rec.AgencyScore = score

		if err := uow.AppendSignals([]*journey.SignalEntry{{
			ID:        uuid.New().String(),
			UserID:    userID,
			Scorer:    journey.ScorerAgency,
			Name:      journey.CompositeSignal,
			Raw:       score,
			Weight:    1,
			Aggregate: score,
			Source:    "coach_override",
			CreatedAt: now,
		}}); err != nil {
			return err
		}
		return uow.UpsertSnapshot(journey.SnapshotFrom(rec, now))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.overrideCounter != nil {
		s.overrideCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "set")))
	}
	s.logger.Info("coach override set",
		zap.String("user_id", userID),
		zap.String("mode", string(mode)),
	)
	return rec, nil
}

// ClearOverride removes an active override and restores the mode mapped
// from the last computed signals. Clearing when no override is active is
// a no-op success.
func (s *Scorer) ClearOverride(ctx context.Context, userID string) (*journey.Record, error) {
	ctx, span := s.tracer.Start(ctx, "agency.clear_override")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	now := s.now()
	cleared := false

	rec, err := s.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		if rec.CoachOverride == nil {
			return nil
		}
		cleared = true
		rec.CoachOverride = nil

		_, _, score := s.aggregate(rec.AgencySignals)
		rec.AgencyScore = score
		rec.AgencyMode = s.cfg.ModeFor(score)

		return uow.UpsertSnapshot(journey.SnapshotFrom(rec, now))
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if cleared && s.overrideCounter != nil {
		s.overrideCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "clear")))
	}
	if cleared {
		s.logger.Info("coach override cleared", zap.String("user_id", userID))
	}
	return rec, nil
}
