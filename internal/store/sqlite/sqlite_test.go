package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "journey.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetOrCreate_LazyDefault(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "user-1")
	require.ErrorIs(t, err, journey.ErrNotTracked)

	rec, err := store.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, journey.StageAuthorization, rec.Stage)
	assert.Equal(t, journey.AgencyPassive, rec.AgencyMode)
	assert.Zero(t, rec.TrustScore)

	// Second access returns the stored record, not a fresh default.
	again, err := store.GetOrCreate(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, rec.CreatedAt, again.CreatedAt)
}

func TestMutate_CommitsRecordAndAuditAtomically(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	_, err := store.Mutate(context.Background(), "user-1", func(rec *journey.Record, uow journey.UnitOfWork) error {
		rec.Stage = journey.StageObservation
		rec.TransitionCount = 1
		if err := uow.AppendTransition(&journey.Transition{
			ID:        uuid.New().String(),
			UserID:    "user-1",
			From:      journey.StageAuthorization,
			To:        journey.StageObservation,
			Kind:      journey.TransitionAdvance,
			Reason:    "consent signed",
			Actor:     "coach-7",
			Evidence:  map[string]string{"days_in_stage": "2"},
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := uow.AppendSignals([]*journey.SignalEntry{{
			ID:        uuid.New().String(),
			UserID:    "user-1",
			Scorer:    journey.ScorerAgency,
			Name:      journey.CompositeSignal,
			Aggregate: 0.4,
			Source:    "computed",
			CreatedAt: now,
		}}); err != nil {
			return err
		}
		return uow.UpsertSnapshot(journey.SnapshotFrom(rec, now))
	})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, journey.StageObservation, rec.Stage)

	transitions, err := store.Transitions(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "consent signed", transitions[0].Reason)
	assert.Equal(t, "2", transitions[0].Evidence["days_in_stage"])

	entries, err := store.SignalEntries(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journey.CompositeSignal, entries[0].Name)

	snap, err := store.Snapshot(context.Background(), "user-1")
	require.NoError(t, err)
	ok, _ := snap.Matches(rec)
	assert.True(t, ok)
}

func TestMutate_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	boom := errors.New("boom")

	_, err := store.Mutate(context.Background(), "user-1", func(rec *journey.Record, uow journey.UnitOfWork) error {
		rec.Stage = journey.StagePractice
		if err := uow.AppendTransition(&journey.Transition{
			ID:        uuid.New().String(),
			UserID:    "user-1",
			Kind:      journey.TransitionAdvance,
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The lazily created record rolled back with everything else.
	_, err = store.Get(context.Background(), "user-1")
	require.ErrorIs(t, err, journey.ErrNotTracked)

	transitions, err := store.Transitions(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestRecord_FullRoundTrip(t *testing.T) {
	store := newTestStore(t)
	override := journey.AgencyActive
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Mutate(context.Background(), "user-1", func(rec *journey.Record, uow journey.UnitOfWork) error {
		rec.Stage = journey.StageStability
		rec.StabilityStart = &start
		rec.StabilityDays = 12
		rec.StabilityCountedOn = "2025-06-13"
		rec.InterruptionCount = 2
		rec.TransitionCount = 6
		rec.AgencyMode = journey.AgencyActive
		rec.AgencyScore = 0.75
		rec.AgencySignals = map[string]float64{"goal_setting": 0.8}
		rec.CoachOverride = &override
		rec.TrustScore = 0.61
		rec.TrustSignals = map[string]float64{"self_disclosure": 0.9}
		return nil
	})
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, journey.StageStability, rec.Stage)
	require.NotNil(t, rec.StabilityStart)
	assert.True(t, start.Equal(*rec.StabilityStart))
	assert.Equal(t, 12, rec.StabilityDays)
	assert.Equal(t, "2025-06-13", rec.StabilityCountedOn)
	assert.Equal(t, 2, rec.InterruptionCount)
	assert.Equal(t, map[string]float64{"goal_setting": 0.8}, rec.AgencySignals)
	require.NotNil(t, rec.CoachOverride)
	assert.Equal(t, journey.AgencyActive, *rec.CoachOverride)
	assert.Equal(t, map[string]float64{"self_disclosure": 0.9}, rec.TrustSignals)
	assert.Nil(t, rec.GraduatedAt)
}

func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journey.db")

	store, err := New(path, nil)
	require.NoError(t, err)
	_, err = store.Mutate(context.Background(), "user-1", func(rec *journey.Record, uow journey.UnitOfWork) error {
		rec.Stage = journey.StageActivation
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, journey.StageActivation, rec.Stage)
}

func TestTransitions_NewestFirstWithLimit(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		i := i
		_, err := store.Mutate(context.Background(), "user-1", func(rec *journey.Record, uow journey.UnitOfWork) error {
			return uow.AppendTransition(&journey.Transition{
				ID:        uuid.New().String(),
				UserID:    "user-1",
				From:      journey.Stage(i),
				To:        journey.Stage(i + 1),
				Kind:      journey.TransitionAdvance,
				CreatedAt: time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC),
			})
		})
		require.NoError(t, err)
	}

	transitions, err := store.Transitions(context.Background(), "user-1", 2)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	assert.Equal(t, journey.StagePractice, transitions[0].To)
	assert.Equal(t, journey.StageActivation, transitions[1].To)
}

func TestClaimJobWindow(t *testing.T) {
	store := newTestStore(t)

	claimed, err := store.ClaimJobWindow(context.Background(), "stability", "2025-03-01")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimJobWindow(context.Background(), "stability", "2025-03-01")
	require.NoError(t, err)
	assert.False(t, claimed)

	// Different job or window claims independently.
	claimed, err = store.ClaimJobWindow(context.Background(), "reconciliation", "2025-03-01")
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = store.ClaimJobWindow(context.Background(), "stability", "2025-03-02")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestUsers_Paging(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"charlie", "alice", "bob"} {
		_, err := store.GetOrCreate(context.Background(), id)
		require.NoError(t, err)
	}

	page, err := store.Users(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, page)

	page, err = store.Users(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie"}, page)

	page, err = store.Users(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}
