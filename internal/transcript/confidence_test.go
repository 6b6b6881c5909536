package transcript

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreFixedPoints(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Score(0, 0))
	for _, x := range []float64{0, -0.5, -3, -100, 2, 1000} {
		require.Equal(t, 0.0, Score(x, 1.0), "avg_logprob=%v", x)
	}
}

func TestScoreReferenceValues(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 0.859, Score(-0.1, 0.05), 0.001)
	require.InDelta(t, 0.0007, Score(-5.0, 0.9), 0.0001)
}

func TestScoreStaysInUnitInterval(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		avg := -rng.Float64() * 30
		noSpeech := rng.Float64()
		got := Score(avg, noSpeech)
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 1.0)
	}
}

func TestScoreAbsorbsNumericFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		avg      float64
		noSpeech float64
	}{
		{name: "nan logprob", avg: math.NaN(), noSpeech: 0},
		{name: "nan no-speech", avg: -0.2, noSpeech: math.NaN()},
		{name: "inf logprob", avg: math.Inf(1), noSpeech: 0.1},
		{name: "negative inf no-speech", avg: -0.2, noSpeech: math.Inf(-1)},
		{name: "overflowing exp", avg: 1e6, noSpeech: 0.5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, 0.0, Score(tt.avg, tt.noSpeech))
		})
	}
}

func TestScoreRejectsOutOfRangeInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		avg      float64
		noSpeech float64
	}{
		{name: "positive logprob", avg: 0.5, noSpeech: 0},
		{name: "barely positive logprob", avg: 1e-9, noSpeech: 0},
		{name: "large positive logprob", avg: 709, noSpeech: 0},
		{name: "logprob past exp overflow", avg: 710, noSpeech: 0},
		{name: "no-speech above one", avg: -0.1, noSpeech: 1.5},
		{name: "negative no-speech", avg: -0.1, noSpeech: -0.01},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, 0.0, Score(tt.avg, tt.noSpeech))
		})
	}
}

func TestScoreAcceptsRangeBoundaries(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Score(0, 0))
	require.Equal(t, 0.0, Score(0, 1))
	require.InDelta(t, math.Exp(-0.2), Score(-0.2, 0), 1e-12)
}
