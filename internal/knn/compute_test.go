package knn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAverageComputer_ComputeUserVector(t *testing.T) {
	reco := NewShard(&fakeNative{
		dim:     2,
		labels:  []int64{1, 2},
		vectors: map[int64][]float32{1: {2, 4}, 2: {4, 8}},
	}, true)
	pi := NewPartnerIndex(2, []*Shard{reco})
	registry := NewRegistry(2, map[int32]*PartnerIndex{1: pi})

	var c AverageComputer
	result, err := c.ComputeUserVector(context.Background(), registry, []UserEvent{
		{PartnerID: 1, Label: 1},
		{PartnerID: 1, Label: 2},
		{PartnerID: 1, Label: 999}, // unresolvable, skipped
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.UsedCount)
	assert.Equal(t, []float32{3, 6}, result.UserEmbedding)
}

func TestAverageComputer_ComputeUserVector_NoMatches(t *testing.T) {
	registry := NewRegistry(3, map[int32]*PartnerIndex{})

	var c AverageComputer
	result, err := c.ComputeUserVector(context.Background(), registry, []UserEvent{
		{PartnerID: 1, Label: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.UsedCount)
	assert.Equal(t, []float32{0, 0, 0}, result.UserEmbedding)
}
