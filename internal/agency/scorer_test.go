package agency

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
	"github.com/fyrsmithlabs/journeyd/internal/signals"
)

func newTestScorer(t *testing.T) (*Scorer, *journey.MemoryStore, *signals.Static) {
	t.Helper()
	store := journey.NewMemoryStore()
	provider := signals.NewStatic()
	scorer, err := NewScorer(nil, store, provider, nil)
	require.NoError(t, err)
	return scorer, store, provider
}

func TestDefaultConfig_WeightsSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	sum := 0.0
	for _, w := range cfg.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Len(t, cfg.Weights, 6)
}

func TestCompute_FullyAgenticUser(t *testing.T) {
	// All signals at 1.0 except coach_dependency at 0, which inverts to
	// a full positive contribution: weighted score is exactly 1.0.
	scorer, _, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{
		SignalSelfInitiated:    1.0,
		SignalGoalSetting:      1.0,
		SignalSelfReflection:   1.0,
		SignalActiveExpression: 1.0,
		SignalCoachDependency:  0.0,
		SignalAwarenessDepth:   1.0,
	})

	result, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.Equal(t, journey.AgencyActive, result.Mode)
	assert.False(t, result.Overridden)
}

func TestCompute_MissingSignalsDefaultToZero(t *testing.T) {
	scorer, _, provider := newTestScorer(t)
	// Only coach_dependency provided, at full dependency. Everything
	// else defaults to 0, so the inverted dependency contributes nothing
	// either: total score 0.
	provider.Set("user-1", map[string]float64{SignalCoachDependency: 1.0})

	result, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Zero(t, result.Score)
	assert.Equal(t, journey.AgencyPassive, result.Mode)
}

func TestCompute_OutOfRangeSignalsAreClamped(t *testing.T) {
	scorer, _, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{
		SignalSelfInitiated:  3.0,
		SignalGoalSetting:    -2.0,
		SignalSelfReflection: 1.0,
	})

	result, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Signals[SignalSelfInitiated], 1e-9)
	assert.Zero(t, result.Signals[SignalGoalSetting])
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 1.0)
}

func TestModeFor_BandBoundaries(t *testing.T) {
	cfg := DefaultConfig()

	// Closed middle band: 0.3 and 0.6 are both transitional.
	tests := []struct {
		score float64
		want  journey.AgencyMode
	}{
		{0.0, journey.AgencyPassive},
		{0.2999999, journey.AgencyPassive},
		{0.3, journey.AgencyTransitional},
		{0.45, journey.AgencyTransitional},
		{0.6, journey.AgencyTransitional},
		{0.6000001, journey.AgencyActive},
		{1.0, journey.AgencyActive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.ModeFor(tt.score), "score %v", tt.score)
	}
}

func TestModeFor_PartitionIsTotal(t *testing.T) {
	// Every score in [0,1] maps to exactly one of the three modes and
	// the mapping is monotonic.
	cfg := DefaultConfig()
	order := map[journey.AgencyMode]int{
		journey.AgencyPassive:      0,
		journey.AgencyTransitional: 1,
		journey.AgencyActive:       2,
	}

	prev := -1
	for s := 0.0; s <= 1.0; s += 0.001 {
		mode := cfg.ModeFor(s)
		rank, ok := order[mode]
		require.True(t, ok)
		assert.GreaterOrEqual(t, rank, prev)
		prev = rank
	}
}

func TestCompute_AppendsSignalLog(t *testing.T) {
	scorer, store, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{SignalGoalSetting: 0.8})

	_, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	// One entry per signal plus one composite.
	entries, err := store.SignalEntries(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 7)

	var composite *journey.SignalEntry
	for _, e := range entries {
		assert.Equal(t, journey.ScorerAgency, e.Scorer)
		if e.Name == journey.CompositeSignal {
			composite = e
		}
	}
	require.NotNil(t, composite)
	// goal_setting 0.8×0.20 plus the absent coach_dependency inverting
	// from 0 to a full 0.10 contribution.
	assert.InDelta(t, 0.26, composite.Aggregate, 1e-9)

	// The goal_setting row records weight and contribution.
	for _, e := range entries {
		if e.Name == SignalGoalSetting {
			assert.InDelta(t, 0.20, e.Weight, 1e-9)
			assert.InDelta(t, 0.16, e.Contribution, 1e-9)
		}
	}
}

func TestCompute_SyncsSnapshot(t *testing.T) {
	scorer, store, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{SignalSelfInitiated: 1.0})

	_, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	snap, err := store.Snapshot(context.Background(), "user-1")
	require.NoError(t, err)

	ok, drifted := snap.Matches(rec)
	assert.True(t, ok, "drifted fields: %v", drifted)
}

func TestOverride_SupersedesComputation(t *testing.T) {
	scorer, store, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{
		SignalSelfInitiated:  1.0,
		SignalGoalSetting:    1.0,
		SignalSelfReflection: 1.0,
	})

	_, err := scorer.SetOverride(context.Background(), "user-1", journey.AgencyPassive)
	require.NoError(t, err)

	// Strong signals cannot shake the override.
	result, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.Overridden)
	assert.Equal(t, journey.AgencyPassive, result.Mode)
	assert.InDelta(t, 0.15, result.Score, 1e-9)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, journey.AgencyPassive, rec.AgencyMode)
	require.NotNil(t, rec.CoachOverride)

	// Snapshot reflects the override too.
	snap, err := store.Snapshot(context.Background(), "user-1")
	require.NoError(t, err)
	ok, _ := snap.Matches(rec)
	assert.True(t, ok)
}

func TestOverride_ClearRestoresComputedMapping(t *testing.T) {
	scorer, store, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{
		SignalSelfInitiated:    1.0,
		SignalGoalSetting:      1.0,
		SignalSelfReflection:   1.0,
		SignalActiveExpression: 1.0,
		SignalCoachDependency:  0.0,
		SignalAwarenessDepth:   1.0,
	})

	_, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)
	_, err = scorer.SetOverride(context.Background(), "user-1", journey.AgencyPassive)
	require.NoError(t, err)

	rec, err := scorer.ClearOverride(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Nil(t, rec.CoachOverride)
	assert.Equal(t, journey.AgencyActive, rec.AgencyMode)
	assert.InDelta(t, 1.0, rec.AgencyScore, 1e-9)

	snap, err := store.Snapshot(context.Background(), "user-1")
	require.NoError(t, err)
	ok, _ := snap.Matches(rec)
	assert.True(t, ok)
}

func TestOverride_UnknownModeRejected(t *testing.T) {
	scorer, _, _ := newTestScorer(t)

	_, err := scorer.SetOverride(context.Background(), "user-1", journey.AgencyMode("supercharged"))
	require.Error(t, err)

	var verr *journey.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "coach_agency_override", verr.Field)
}

func TestOverride_ClearWithoutOverrideIsNoOp(t *testing.T) {
	scorer, _, _ := newTestScorer(t)

	rec, err := scorer.ClearOverride(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, rec.CoachOverride)
}

func TestConfig_RejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[SignalGoalSetting] = 0.5 // sum now 1.3
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.OverrideScores[journey.AgencyActive] = 0.2 // maps to passive
	require.Error(t, cfg.Validate())
}

func TestScoreAlwaysInUnitInterval(t *testing.T) {
	scorer, _, provider := newTestScorer(t)

	inputs := []map[string]float64{
		{},
		{SignalSelfInitiated: math.Inf(1)},
		{SignalCoachDependency: -5},
		{SignalSelfInitiated: 1, SignalGoalSetting: 1, SignalSelfReflection: 1, SignalActiveExpression: 1, SignalCoachDependency: 0, SignalAwarenessDepth: 1},
	}
	for i, in := range inputs {
		provider.Set("user-1", in)
		result, err := scorer.Compute(context.Background(), "user-1")
		require.NoError(t, err, "case %d", i)
		assert.GreaterOrEqual(t, result.Score, 0.0)
		assert.LessOrEqual(t, result.Score, 1.0)
	}
}
