package chromem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchRanksBySimilarity(t *testing.T) {
	ctx := t.Context()
	ix := New()

	require.NoError(t, ix.Add(ctx, "exact", "", []float32{1, 0, 0}))
	require.NoError(t, ix.Add(ctx, "close", "", []float32{0.9, 0.4358899, 0}))
	require.NoError(t, ix.Add(ctx, "orthogonal", "", []float32{0, 0, 1}))

	hits, err := ix.Search(ctx, []float32{1, 0, 0}, 3, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "exact", hits[0].ID)
	assert.Equal(t, "close", hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
}

func TestSearchLimitLargerThanCollection(t *testing.T) {
	ctx := t.Context()
	ix := New()
	require.NoError(t, ix.Add(ctx, "only", "", []float32{1, 0}))

	hits, err := ix.Search(ctx, []float32{1, 0}, 10, "")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := New()
	hits, err := ix.Search(t.Context(), []float32{1, 0}, 5, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestProjectScoping(t *testing.T) {
	ctx := t.Context()
	ix := New()
	require.NoError(t, ix.Add(ctx, "in-a", "proj-a", []float32{1, 0}))
	require.NoError(t, ix.Add(ctx, "in-b", "proj-b", []float32{1, 0}))

	hits, err := ix.Search(ctx, []float32{1, 0}, 10, "proj-a")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "in-a", hits[0].ID)

	merged, err := ix.Search(ctx, []float32{1, 0}, 10, "")
	require.NoError(t, err)
	assert.Len(t, merged, 2)

	none, err := ix.Search(ctx, []float32{1, 0}, 10, "proj-c")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddReplacesVector(t *testing.T) {
	ctx := t.Context()
	ix := New()
	require.NoError(t, ix.Add(ctx, "n", "", []float32{1, 0}))
	require.NoError(t, ix.Add(ctx, "n", "", []float32{0, 1}))

	hits, err := ix.Search(ctx, []float32{0, 1}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
}
