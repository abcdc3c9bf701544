package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/journeyd/internal/guard"
	"github.com/fyrsmithlabs/journeyd/internal/journey"
	"github.com/fyrsmithlabs/journeyd/internal/stage"
)

type fixture struct {
	scheduler *Scheduler
	store     *journey.MemoryStore
	engine    *stage.Engine
	clock     *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AdvanceDays(n int) { c.now = c.now.Add(time.Duration(n) * 24 * time.Hour) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := journey.NewMemoryStore()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC)}

	engine, err := stage.NewEngine(nil, store, nil, stage.WithClock(clock.Now))
	require.NoError(t, err)
	g, err := guard.NewGuard(store, nil, guard.WithClock(clock.Now))
	require.NoError(t, err)
	sched, err := NewScheduler(store, engine, g, nil, WithClock(clock.Now), WithBatchSize(2))
	require.NoError(t, err)

	return &fixture{scheduler: sched, store: store, engine: engine, clock: clock}
}

// seedAtStability force-walks a user into the stability stage.
func (f *fixture) seedAtStability(t *testing.T, userID string) {
	t.Helper()
	for i := 0; i < 4; i++ {
		_, err := f.engine.Advance(context.Background(), userID, "seed", "test", true)
		require.NoError(t, err)
	}
}

func TestRunStability_CountsUsersInStabilityStage(t *testing.T) {
	f := newFixture(t)
	f.seedAtStability(t, "in-stability-1")
	f.seedAtStability(t, "in-stability-2")
	_, err := f.store.GetOrCreate(context.Background(), "still-authorizing")
	require.NoError(t, err)

	result, err := f.scheduler.RunStability(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Claimed)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Errors)

	rec, err := f.store.Get(context.Background(), "in-stability-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.StabilityDays)
}

func TestRunStability_WindowClaimedOnce(t *testing.T) {
	f := newFixture(t)
	f.seedAtStability(t, "user-1")

	first, err := f.scheduler.RunStability(context.Background())
	require.NoError(t, err)
	require.True(t, first.Claimed)

	// A rerun on the same day is a no-op; nothing is double counted.
	second, err := f.scheduler.RunStability(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Claimed)
	assert.Zero(t, second.Processed)

	rec, err := f.store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.StabilityDays)
}

func TestRunStability_NextDayCountsAgain(t *testing.T) {
	f := newFixture(t)
	f.seedAtStability(t, "user-1")

	_, err := f.scheduler.RunStability(context.Background())
	require.NoError(t, err)

	f.clock.AdvanceDays(1)
	result, err := f.scheduler.RunStability(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Claimed)
	assert.Equal(t, 1, result.Processed)

	rec, err := f.store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.StabilityDays)
}

func TestRunStability_InteractiveCountMakesJobSkip(t *testing.T) {
	f := newFixture(t)
	f.seedAtStability(t, "user-1")

	// A check-in already counted today through the interactive path.
	_, err := f.engine.UpdateStability(context.Background(), "user-1", 1)
	require.NoError(t, err)

	result, err := f.scheduler.RunStability(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Errors)

	rec, err := f.store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.StabilityDays)
}

func TestRunReconciliation_RepairsDrift(t *testing.T) {
	f := newFixture(t)
	f.seedAtStability(t, "user-1")
	f.store.ForceSnapshot(&journey.Snapshot{UserID: "user-1", Stage: journey.StageObservation})

	result, err := f.scheduler.RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Claimed)
	assert.Equal(t, 1, result.Processed)

	rec, err := f.store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	snap, err := f.store.Snapshot(context.Background(), "user-1")
	require.NoError(t, err)
	ok, _ := snap.Matches(rec)
	assert.True(t, ok)
}

func TestRunReconciliation_WindowClaimedOnce(t *testing.T) {
	f := newFixture(t)

	first, err := f.scheduler.RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Claimed)

	second, err := f.scheduler.RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.False(t, second.Claimed)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.scheduler.Start())
	assert.Error(t, f.scheduler.Start(), "second start must be rejected")

	require.NoError(t, f.scheduler.Stop())
	require.NoError(t, f.scheduler.Stop(), "stop is idempotent")

	// The scheduler can be restarted after a stop.
	require.NoError(t, f.scheduler.Start())
	require.NoError(t, f.scheduler.Stop())
}

func TestNewScheduler_Validation(t *testing.T) {
	store := journey.NewMemoryStore()
	engine, err := stage.NewEngine(nil, store, nil)
	require.NoError(t, err)
	g, err := guard.NewGuard(store, nil)
	require.NoError(t, err)

	_, err = NewScheduler(nil, engine, g, nil)
	require.Error(t, err)
	_, err = NewScheduler(store, nil, g, nil)
	require.Error(t, err)
	_, err = NewScheduler(store, engine, nil, nil)
	require.Error(t, err)
}
