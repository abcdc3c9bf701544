package trust

import (
	"context"
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

func TestCompute_AllSignalsZero(t *testing.T) {
	// No signals at all: score 0, trust not established, nothing allowed.
	scorer, _, _ := newTestScorer(t)

	result, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Zero(t, result.Score)
	assert.Equal(t, journey.TrustNotEstablished, result.Level)
	assert.False(t, result.Permissions.AllowAssessment)
	assert.False(t, result.Permissions.AllowDeepIntervention)
}

func TestCompute_WeightedAggregation(t *testing.T) {
	scorer, store, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{
		SignalDialogContinuity:    1.0, // 0.25
		SignalSelfDisclosure:      0.5, // 0.10
		SignalCuriosityExpression: 1.0, // 0.15
	})

	result, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	assert.InDelta(t, 0.50, result.Score, 1e-9)
	assert.Equal(t, journey.TrustBuilding, result.Level)
	assert.True(t, result.Permissions.AllowAssessment)
	assert.False(t, result.Permissions.AllowDeepIntervention)

	rec, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.50, rec.TrustScore, 1e-9)

	snap, err := store.Snapshot(context.Background(), "user-1")
	require.NoError(t, err)
	ok, _ := snap.Matches(rec)
	assert.True(t, ok)
}

func TestLevelFor_BandBoundaries(t *testing.T) {
	cfg := DefaultConfig()

	// Closed middle band: 0.3 and 0.5 are both building.
	tests := []struct {
		score float64
		want  journey.TrustLevel
	}{
		{0.0, journey.TrustNotEstablished},
		{0.2999999, journey.TrustNotEstablished},
		{0.3, journey.TrustBuilding},
		{0.4, journey.TrustBuilding},
		{0.5, journey.TrustBuilding},
		{0.5000001, journey.TrustEstablished},
		{1.0, journey.TrustEstablished},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.LevelFor(tt.score), "score %v", tt.score)
	}
}

func TestCompute_AppendsSignalLog(t *testing.T) {
	scorer, store, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{SignalSelfDisclosure: 1.0})

	_, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	entries, err := store.SignalEntries(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 7)

	for _, e := range entries {
		assert.Equal(t, journey.ScorerTrust, e.Scorer)
	}
}

func TestEvaluateActivation_CuriosityPath(t *testing.T) {
	scorer, _, provider := newTestScorer(t)
	provider.Set("user-1", map[string]float64{SignalCuriosityExpression: 0.45})

	_, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	result, err := scorer.EvaluateActivation(context.Background(), "user-1", ActivationInput{})
	require.NoError(t, err)

	assert.True(t, result.Eligible)
	require.Len(t, result.Paths, 3)

	curiosity := result.Paths[0]
	assert.Equal(t, PathCuriosity, curiosity.Path)
	assert.InDelta(t, 0.45, curiosity.Current, 1e-9)
	assert.InDelta(t, 0.40, curiosity.Target, 1e-9)
	assert.True(t, curiosity.Met)
}

func TestEvaluateActivation_TimePathNeedsBothConditions(t *testing.T) {
	scorer, _, provider := newTestScorer(t)
	// Score: 0.25 + 0.20 + 0.15 + 0.15 = 0.75, well above the 0.60 target.
	provider.Set("user-1", map[string]float64{
		SignalDialogContinuity:    1.0,
		SignalSelfDisclosure:      1.0,
		SignalResponseConsistency: 1.0,
		SignalTaskFollowThrough:   1.0,
	})
	_, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	// High trust but too few dialogs
	result, err := scorer.EvaluateActivation(context.Background(), "user-1", ActivationInput{DialogCount: 2})
	require.NoError(t, err)
	assert.False(t, result.Paths[1].Met)

	// Dialog floor reached
	result, err = scorer.EvaluateActivation(context.Background(), "user-1", ActivationInput{DialogCount: 3})
	require.NoError(t, err)
	assert.True(t, result.Paths[1].Met)
	assert.True(t, result.Eligible)
}

func TestEvaluateActivation_CoachReferredPath(t *testing.T) {
	scorer, _, provider := newTestScorer(t)
	// All signals at 1.0: score 1.0.
	provider.Set("user-1", map[string]float64{
		SignalDialogContinuity:    1.0,
		SignalSelfDisclosure:      1.0,
		SignalResponseConsistency: 1.0,
		SignalTaskFollowThrough:   1.0,
		SignalCuriosityExpression: 0.0,
		SignalRelationshipTenure:  1.0,
	})
	_, err := scorer.Compute(context.Background(), "user-1")
	require.NoError(t, err)

	// High trust without coach referral does not satisfy path C
	result, err := scorer.EvaluateActivation(context.Background(), "user-1", ActivationInput{ConversionSource: "organic"})
	require.NoError(t, err)
	assert.False(t, result.Paths[2].Met)

	result, err = scorer.EvaluateActivation(context.Background(), "user-1", ActivationInput{ConversionSource: ConversionSourceCoach})
	require.NoError(t, err)
	assert.True(t, result.Paths[2].Met)
}

func TestEvaluateActivation_NewUserIneligibleNotError(t *testing.T) {
	scorer, _, _ := newTestScorer(t)

	result, err := scorer.EvaluateActivation(context.Background(), "brand-new", ActivationInput{})
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	require.Len(t, result.Paths, 3)
	for _, p := range result.Paths {
		assert.False(t, p.Met)
	}
}

func TestConfig_UnknownPathRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths = append(cfg.Paths, "astrology")

	err := cfg.Validate()
	require.Error(t, err)

	var verr *journey.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "activation_path", verr.Field)
}

func TestLevel_LazilyCreatesRecord(t *testing.T) {
	scorer, store, _ := newTestScorer(t)

	level, perms, err := scorer.Level(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, journey.TrustNotEstablished, level)
	assert.False(t, perms.AllowAssessment)

	_, err = store.Get(context.Background(), "user-1")
	require.NoError(t, err)
}
