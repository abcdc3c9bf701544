package trust

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

const instrumentationName = "github.com/fyrsmithlabs/journeyd/internal/trust"

// Result is the outcome of one trust computation.
type Result struct {
	UserID string `json:"user_id"`

	Score float64            `json:"score"`
	Level journey.TrustLevel `json:"level"`

	// Permissions is the behavior contract granted by the level.
	Permissions Permissions `json:"permissions"`

	// Signals holds the clamped raw inputs.
	Signals map[string]float64 `json:"signals"`

	// Contributions holds weight × value per signal.
	Contributions map[string]float64 `json:"contributions"`
}

// Scorer computes and persists trust scores.
type Scorer struct {
	cfg      *Config
	store    journey.Store
	provider signals.Provider
	logger   *zap.Logger
	now      func() time.Time

	tracer         trace.Tracer
	meter          metric.Meter
	computeCounter metric.Int64Counter
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the scorer's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a trust scorer. cfg may be nil for defaults; logger
// may be nil for a nop logger.
func NewScorer(cfg *Config, store journey.Store, provider signals.Provider, logger *zap.Logger, opts ...Option) (*Scorer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trust config: %w", err)
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

	var err error
	s.computeCounter, err = s.meter.Int64Counter(
		"journeyd.trust.computations_total",
		metric.WithDescription("Total number of trust score computations"),
		metric.WithUnit("{computation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create computation counter", zap.Error(err))
	}
	return s, nil
}

// Compute fetches the user's signals, aggregates the weighted score, and
// persists record, audit entries, and cache snapshot in one unit of work.
func (s *Scorer) Compute(ctx context.Context, userID string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "trust.compute")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	raw, err := s.provider.Signals(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fetch signals: %w", err)
	}

	inputs := make(map[string]float64, len(s.cfg.Weights))
	contributions := make(map[string]float64, len(s.cfg.Weights))
	sum := 0.0
	for name, weight := range s.cfg.Weights {
		v := signals.Clamp(raw[name])
		inputs[name] = v
		c := weight * v
		contributions[name] = c
		sum += c
	}
	score := signals.Clamp(sum)
	now := s.now()

	result := &Result{
		UserID:        userID,
		Score:         score,
		Level:         s.cfg.LevelFor(score),
		Permissions:   s.cfg.ContractFor(score),
		Signals:       inputs,
		Contributions: contributions,
	}

	_, err = s.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		rec.TrustScore = score
		rec.TrustSignals = inputs

		if err := uow.AppendSignals(s.auditEntries(userID, inputs, contributions, score, now)); err != nil {
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
			attribute.String("level", string(result.Level)),
		))
	}
	s.logger.Debug("computed trust score",
		zap.String("user_id", userID),
		zap.Float64("score", score),
		zap.String("level", string(result.Level)),
	)

	span.SetAttributes(attribute.Float64("score", score))
	return result, nil
}

func (s *Scorer) auditEntries(userID string, inputs, contributions map[string]float64, score float64, now time.Time) []*journey.SignalEntry {
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
			Scorer:       journey.ScorerTrust,
			Name:         name,
			Raw:          inputs[name],
			Weight:       s.cfg.Weights[name],
			Contribution: contributions[name],
			Aggregate:    score,
			Source:       "computed",
			CreatedAt:    now,
		})
	}
	entries = append(entries, &journey.SignalEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Scorer:    journey.ScorerTrust,
		Name:      journey.CompositeSignal,
		Raw:       score,
		Weight:    1,
		Aggregate: score,
		Source:    "computed",
		CreatedAt: now,
	})
	return entries
}

// Level returns the stored trust level and behavior contract for a user,
// lazily creating the record on first access.
func (s *Scorer) Level(ctx context.Context, userID string) (journey.TrustLevel, Permissions, error) {
	rec, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return "", Permissions{}, err
	}
	level := s.cfg.LevelFor(rec.TrustScore)
	return level, s.cfg.Contracts[level], nil
}
