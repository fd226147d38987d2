package knn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	cases := map[string]DistanceMetric{
		"l2":        MetricL2,
		"Euclidean": MetricL2,
		"cosine":    MetricCosine,
		"ANGULAR":   MetricCosine,
		"dot":       MetricDot,
		" dot ":     MetricDot,
	}
	for in, want := range cases {
		got, err := ParseMetric(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMetric("manhattan")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDistance)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
}

func TestDistanceMetric_distance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 2.0, float64(MetricL2.distance(a, b)), 1e-6)
	assert.InDelta(t, 1.0, float64(MetricCosine.distance(a, b)), 1e-6)
	assert.InDelta(t, 0.0, float64(MetricDot.distance(a, b)), 1e-6)
}
