package weights

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, sources []string, lo, hi float64) *Manager {
	t.Helper()
	m, err := NewManager(Config{Sources: sources, MinWeight: lo, MaxWeight: hi, Window: 100})
	require.NoError(t, err)
	return m
}

func feed(t *testing.T, m *Manager, source string, correct, total int) {
	t.Helper()
	for i := 0; i < total; i++ {
		require.NoError(t, m.UpdatePerformance(context.Background(), source, i < correct, 70))
	}
}

func assertInvariants(t *testing.T, m *Manager, w map[string]float64) {
	t.Helper()
	var sum float64
	for s, v := range w {
		sum += v
		assert.GreaterOrEqual(t, v, m.minWeight-1e-12, "source %s below min", s)
		assert.LessOrEqual(t, v, m.maxWeight+1e-12, "source %s above max", s)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestNewManagerStartsUniform(t *testing.T) {
	m := newTestManager(t, []string{"a", "b", "c", "d"}, 0.05, 0.6)
	for _, s := range m.Sources() {
		w, ok := m.Weight(s)
		require.True(t, ok)
		assert.InDelta(t, 0.25, w, 1e-12)
	}
	_, ok := m.Weight("zz")
	assert.False(t, ok)
}

func TestNewManagerRejectsInfeasibleBounds(t *testing.T) {
	_, err := NewManager(Config{Sources: []string{"a", "b", "c"}, MinWeight: 0.05, MaxWeight: 0.2})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(Config{Sources: []string{"a", "b"}, MinWeight: 0.6, MaxWeight: 0.9})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewManager(Config{Sources: []string{"a", "a"}, MinWeight: 0.1, MaxWeight: 0.9})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewManagerNormalizesInitialWeights(t *testing.T) {
	m, err := NewManager(Config{
		Sources:        []string{"a", "b"},
		InitialWeights: map[string]float64{"a": 3, "b": 1},
		MinWeight:      0.1,
		MaxWeight:      0.9,
	})
	require.NoError(t, err)
	w := m.Weights()
	assert.InDelta(t, 0.75, w["a"], 1e-9)
	assert.InDelta(t, 0.25, w["b"], 1e-9)
}

func TestUpdatePerformanceValidates(t *testing.T) {
	m := newTestManager(t, []string{"a", "b"}, 0.1, 0.9)
	ctx := context.Background()

	assert.ErrorIs(t, m.UpdatePerformance(ctx, "nope", true, 50), ErrUnknownSource)
	assert.ErrorIs(t, m.UpdatePerformance(ctx, "a", true, 101), ErrInvalidConfidence)
	assert.ErrorIs(t, m.UpdatePerformance(ctx, "a", true, -1), ErrInvalidConfidence)
	assert.NoError(t, m.UpdatePerformance(ctx, "a", true, 0))
	assert.NoError(t, m.UpdatePerformance(ctx, "a", true, 100))
}

func TestUpdatePerformanceDoesNotMoveWeights(t *testing.T) {
	m := newTestManager(t, []string{"a", "b"}, 0.1, 0.9)
	feed(t, m, "a", 10, 10)
	feed(t, m, "b", 0, 10)
	assert.Equal(t, map[string]float64{"a": 0.5, "b": 0.5}, m.Weights())
	assert.True(t, m.LastAdjusted().IsZero())
}

func TestAdjustWeightsRanksByAccuracy(t *testing.T) {
	m := newTestManager(t, []string{"a", "b", "c", "d"}, 0.05, 0.6)
	feed(t, m, "a", 9, 10)
	feed(t, m, "b", 5, 10)
	feed(t, m, "c", 2, 10)
	feed(t, m, "d", 0, 10)

	w, err := m.AdjustWeights(context.Background())
	require.NoError(t, err)

	assertInvariants(t, m, w)
	assert.Greater(t, w["a"], w["b"])
	assert.Greater(t, w["b"], w["c"])
	assert.GreaterOrEqual(t, w["c"], w["d"])
	assert.Equal(t, w, m.Weights())
	assert.False(t, m.LastAdjusted().IsZero())
}

func TestAdjustWeightsClampsToBounds(t *testing.T) {
	m := newTestManager(t, []string{"a", "b"}, 0.1, 0.7)
	feed(t, m, "a", 20, 20)
	feed(t, m, "b", 0, 20)

	w, err := m.AdjustWeights(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 0.7, w["a"], 1e-9)
	assert.InDelta(t, 0.3, w["b"], 1e-9)
	assertInvariants(t, m, w)
}

func TestAdjustWeightsIdenticalAccuracyKeepsPrior(t *testing.T) {
	m := newTestManager(t, []string{"a", "b", "c"}, 0.1, 0.8)
	feed(t, m, "a", 0, 10)
	feed(t, m, "b", 0, 10)
	feed(t, m, "c", 0, 10)

	before := m.Weights()
	w, err := m.AdjustWeights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, w)
	assert.True(t, m.LastAdjusted().IsZero())
}

func TestAdjustWeightsZeroSampleSourceKeepsPrior(t *testing.T) {
	m := newTestManager(t, []string{"a", "b", "c"}, 0.05, 0.8)
	feed(t, m, "a", 8, 10)
	feed(t, m, "b", 2, 10)

	w, err := m.AdjustWeights(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 1.0/3, w["c"], 1e-12)
	assert.Greater(t, w["a"], w["b"])
	assertInvariants(t, m, w)
}

func TestAdjustWeightsUsesRollingWindow(t *testing.T) {
	m, err := NewManager(Config{Sources: []string{"a", "b"}, MinWeight: 0.1, MaxWeight: 0.9, Window: 5})
	require.NoError(t, err)
	ctx := context.Background()

	// a's early misses fall out of the window
	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdatePerformance(ctx, "a", false, 50))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdatePerformance(ctx, "a", true, 50))
		require.NoError(t, m.UpdatePerformance(ctx, "b", i%2 == 0, 50))
	}

	w, err := m.AdjustWeights(ctx)
	require.NoError(t, err)
	assert.Greater(t, w["a"], w["b"])

	report, err := m.PerformanceReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, "a", report[0].SourceID)
	assert.Equal(t, 5, report[0].SampleSize)
	assert.InDelta(t, 1.0, report[0].Accuracy, 1e-12)
	assert.InDelta(t, 50.0, report[0].AvgConfidenceCorrect, 1e-12)
	assert.InDelta(t, w["a"], report[0].CurrentWeight, 1e-12)
	assert.InDelta(t, 0.6, report[1].Accuracy, 1e-12)
}

func TestAdjustWeightsInvariantsHoldForRandomHistories(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sources := []string{"s1", "s2", "s3", "s4", "s5"}

	for round := 0; round < 50; round++ {
		m := newTestManager(t, sources, 0.05, 0.5)
		acc := make(map[string]float64, len(sources))
		for _, s := range sources {
			total := 1 + rng.Intn(40)
			correct := rng.Intn(total + 1)
			feed(t, m, s, correct, total)
			acc[s] = float64(correct) / float64(total)
		}

		w, err := m.AdjustWeights(context.Background())
		require.NoError(t, err)
		assertInvariants(t, m, w)

		for _, a := range sources {
			for _, b := range sources {
				if acc[a] > acc[b] {
					assert.GreaterOrEqual(t, w[a], w[b]-1e-12, "round %d: %s (%.2f) vs %s (%.2f)", round, a, acc[a], b, acc[b])
				}
			}
		}
	}
}
