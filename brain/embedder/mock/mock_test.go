package mock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurabase/brain-go-sdk/brain"
)

func TestEmbedDeterministic(t *testing.T) {
	m := New()
	a, err := m.Embed(t.Context(), "react hooks state")
	require.NoError(t, err)
	b, err := m.Embed(t.Context(), "react hooks state")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, m.Dimensions())
}

func TestEmbedSimilarityTracksTokenOverlap(t *testing.T) {
	m := New()
	ctx := t.Context()

	base, err := m.Embed(ctx, "react hooks manage state")
	require.NoError(t, err)
	near, err := m.Embed(ctx, "react hooks state cleanup")
	require.NoError(t, err)
	far, err := m.Embed(ctx, "docker compose networking")
	require.NoError(t, err)

	nearSim := brain.CosineSimilarity(base, near)
	farSim := brain.CosineSimilarity(base, far)
	assert.Greater(t, nearSim, 0.5)
	assert.Greater(t, nearSim, farSim)
	assert.Less(t, farSim, 0.5, "disjoint token sets stay dissimilar")

	self := brain.CosineSimilarity(base, base)
	assert.InDelta(t, 1.0, self, 1e-6)
}

func TestEmbedNormalized(t *testing.T) {
	m := New()
	vec, err := m.Embed(t.Context(), "Punctuation, CASE and stops! are normalized")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-6)

	again, err := m.Embed(t.Context(), "punctuation case and stops are normalized")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, brain.CosineSimilarity(vec, again), 1e-6)
}

func TestEmbedEmptyText(t *testing.T) {
	m := New()
	vec, err := m.Embed(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, vec, m.Dimensions())
}
