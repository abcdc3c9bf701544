package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

const instrumentationName = "github.com/fyrsmithlabs/journeyd/internal/guard"

const defaultBatchSize = 200

// CheckResult reports one user's consistency check.
type CheckResult struct {
	UserID     string   `json:"user_id"`
	Consistent bool     `json:"consistent"`
	Drifted    []string `json:"drifted,omitempty"`
	Repaired   bool     `json:"repaired"`
}

// SweepResult aggregates a full reconciliation sweep.
type SweepResult struct {
	Checked      int `json:"checked"`
	Inconsistent int `json:"inconsistent"`
	Repaired     int `json:"repaired"`
	Errors       int `json:"errors"`
}

// Guard reconciles cache snapshots against journey records.
type Guard struct {
	store     journey.Store
	logger    *zap.Logger
	now       func() time.Time
	batchSize int

	tracer        trace.Tracer
	meter         metric.Meter
	driftCounter  metric.Int64Counter
	repairCounter metric.Int64Counter
}

// Option configures a Guard.
type Option func(*Guard)

// WithBatchSize sets the user page size for sweeps.
func WithBatchSize(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithClock overrides the guard's time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a consistency guard. logger may be nil.
func NewGuard(store journey.Store, logger *zap.Logger, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Guard{
		store:     store,
		logger:    logger,
		now:       time.Now,
		batchSize: defaultBatchSize,
		tracer:    otel.Tracer(instrumentationName),
		meter:     otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(g)
	}

	var err error
	g.driftCounter, err = g.meter.Int64Counter(
		"journeyd.guard.drift_total",
		metric.WithDescription("Snapshots found inconsistent with their record"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		g.logger.Warn("failed to create drift counter", zap.Error(err))
	}
	g.repairCounter, err = g.meter.Int64Counter(
		"journeyd.guard.repairs_total",
		metric.WithDescription("Snapshots rewritten from the record"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		g.logger.Warn("failed to create repair counter", zap.Error(err))
	}
	return g, nil
}

// Check compares one user's snapshot against the record and repairs it
// when stale. The record is authoritative; the snapshot is never read
// back into the record.
func (g *Guard) Check(ctx context.Context, userID string) (*CheckResult, error) {
	ctx, span := g.tracer.Start(ctx, "guard.check")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	rec, err := g.store.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &CheckResult{UserID: userID}

	snap, err := g.store.Snapshot(ctx, userID)
	switch {
	case errors.Is(err, journey.ErrNotTracked):
		// Record without a snapshot: treat the whole snapshot as drifted.
		result.Drifted = []string{"snapshot_missing"}
	case err != nil:
		span.RecordError(err)
		return nil, err
	default:
		var ok bool
		ok, result.Drifted = snap.Matches(rec)
		result.Consistent = ok
	}

	if result.Consistent {
		return result, nil
	}

	if g.driftCounter != nil {
		g.driftCounter.Add(ctx, 1)
	}
	g.logger.Warn("snapshot drift detected",
		zap.String("user_id", userID),
		zap.Strings("fields", result.Drifted),
	)

	if err := g.repair(ctx, userID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("repair snapshot for %s: %w", userID, err)
	}
	result.Repaired = true
	if g.repairCounter != nil {
		g.repairCounter.Add(ctx, 1)
	}
	return result, nil
}

// repair rewrites the snapshot from the current record inside a write
// transaction, so a concurrent mutation cannot be clobbered by a stale
// read.
func (g *Guard) repair(ctx context.Context, userID string) error {
	_, err := g.store.Mutate(ctx, userID, func(rec *journey.Record, uow journey.UnitOfWork) error {
		return uow.UpsertSnapshot(journey.SnapshotFrom(rec, g.now()))
	})
	return err
}

// Sweep walks all tracked users and repairs every stale snapshot. A
// failing user is counted and skipped; one bad row never aborts the
// sweep.
func (g *Guard) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := g.tracer.Start(ctx, "guard.sweep")
	defer span.End()

	result := &SweepResult{}
	offset := 0
	for {
		users, err := g.store.Users(ctx, offset, g.batchSize)
		if err != nil {
			span.RecordError(err)
			return result, fmt.Errorf("list users at offset %d: %w", offset, err)
		}
		if len(users) == 0 {
			break
		}

		for _, userID := range users {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			check, err := g.Check(ctx, userID)
			if err != nil {
				result.Errors++
				g.logger.Error("sweep check failed",
					zap.String("user_id", userID),
					zap.Error(err),
				)
				continue
			}

			result.Checked++
			if !check.Consistent {
				result.Inconsistent++
			}
			if check.Repaired {
				result.Repaired++
			}
		}
		offset += len(users)
	}

	g.logger.Info("consistency sweep complete",
		zap.Int("checked", result.Checked),
		zap.Int("inconsistent", result.Inconsistent),
		zap.Int("repaired", result.Repaired),
		zap.Int("errors", result.Errors),
	)
	span.SetAttributes(
		attribute.Int("checked", result.Checked),
		attribute.Int("repaired", result.Repaired),
	)
	return result, nil
}
