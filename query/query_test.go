package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurabase/brain-go-sdk/brain"
	"github.com/neurabase/brain-go-sdk/brain/embedder/mock"
	chromemindex "github.com/neurabase/brain-go-sdk/brain/index/chromem"
	"github.com/neurabase/brain-go-sdk/brain/store/memstore"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// failingEmbedder always reports the provider as unavailable.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, brain.ErrEmbeddingUnavailable
}
func (failingEmbedder) Dimensions() int { return 4 }

func testConfig() *brain.Config {
	cfg := brain.DefaultConfig()
	cfg.SimilarityThreshold = 0.5
	return cfg
}

func newEngine(t *testing.T, s brain.Store, emb brain.Embedder, ix brain.VectorIndex) *Engine {
	t.Helper()
	e, err := New(s, emb, ix, testConfig(), fixedClock{baseTime}, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func ingest(t *testing.T, s brain.Store, ix brain.VectorIndex, emb brain.Embedder, content string, tags ...string) *brain.Node {
	t.Helper()
	ctx := context.Background()
	n := brain.NewNode(content, brain.KindFact, tags, "", baseTime.Add(-48*time.Hour))
	n.LastAccessed = baseTime.Add(-48 * time.Hour)
	if emb != nil {
		vec, err := emb.Embed(ctx, content)
		require.NoError(t, err)
		n.Embedding = vec
	}
	require.NoError(t, s.Put(ctx, n))
	if ix != nil && n.Embedding != nil {
		require.NoError(t, ix.Add(ctx, n.ID, n.ProjectID, n.Embedding))
	}
	return n
}

func TestSearchTextMatch(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	hit := ingest(t, s, nil, nil, "configure the postgres connection pool")
	ingest(t, s, nil, nil, "notes about the react frontend")

	results, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, hit.ID, results[0].Node.ID)
	assert.Contains(t, results[0].MatchTypes, "text")
}

func TestSearchTagMatch(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	tagged := ingest(t, s, nil, nil, "pool sizing notes", "postgres")
	direct := ingest(t, s, nil, nil, "postgres vacuum behavior")

	results, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// Content match outranks tag match.
	assert.Equal(t, direct.ID, results[0].Node.ID)
	assert.Equal(t, tagged.ID, results[1].Node.ID)
}

func TestSearchSemanticMatch(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	emb := mock.New()
	ix := chromemindex.New()
	e := newEngine(t, s, emb, ix)

	hit := ingest(t, s, ix, emb, "react hooks manage component state")
	ingest(t, s, ix, emb, "docker compose volume mounting")

	results, err := e.Search(ctx, "react hooks state", Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, hit.ID, results[0].Node.ID)
	assert.Contains(t, results[0].MatchTypes, "semantic")
}

func TestSearchGraphExpansion(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	seed := ingest(t, s, nil, nil, "postgres index bloat")
	linked := ingest(t, s, nil, nil, "vacuum schedule tuning")
	require.NoError(t, s.UpsertEdge(ctx,
		brain.NewConnection(seed.ID, linked.ID, brain.ConnCausal, 0.9, baseTime)))

	results, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, seed.ID, results[0].Node.ID)
	assert.Equal(t, linked.ID, results[1].Node.ID)
	assert.Equal(t, []string{"graph"}, results[1].MatchTypes)
}

func TestSearchDegradesWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	ix := chromemindex.New()
	e := newEngine(t, s, failingEmbedder{}, ix)

	ingest(t, s, nil, nil, "postgres outage retrospective")

	results, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err, "embedding failure must not fail the search")
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), e.Stats().Degraded)
}

func TestSearchExcludesDormantByDefault(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	awake := ingest(t, s, nil, nil, "postgres replication basics")
	asleep := ingest(t, s, nil, nil, "postgres 9.4 upgrade notes")
	asleep.State = brain.StateDormant
	require.NoError(t, s.Put(ctx, asleep))

	results, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, awake.ID, results[0].Node.ID)

	// An explicit state filter makes dormant memories visible again.
	dormant, err := e.Search(ctx, "postgres", Filters{State: brain.StateDormant})
	require.NoError(t, err)
	require.Len(t, dormant, 1)
	assert.Equal(t, asleep.ID, dormant[0].Node.ID)
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	inProj := brain.NewNode("postgres tuning", brain.KindFact, []string{"db"}, "proj-1", baseTime.Add(-time.Hour))
	require.NoError(t, s.Put(ctx, inProj))
	outProj := brain.NewNode("postgres tuning elsewhere", brain.KindFact, []string{"db"}, "proj-2", baseTime.Add(-time.Hour))
	require.NoError(t, s.Put(ctx, outProj))

	results, err := e.Search(ctx, "postgres", Filters{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inProj.ID, results[0].Node.ID)

	none, err := e.Search(ctx, "postgres", Filters{Tags: []string{"missing"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchCacheIdempotence(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	ingest(t, s, nil, nil, "postgres connection pooling")

	first, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	second, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)

	require.Len(t, second, len(first))
	assert.Equal(t, first[0].Node.ID, second[0].Node.ID)
	assert.Equal(t, first[0].Score, second[0].Score)
	assert.Equal(t, uint64(1), e.Stats().CacheHits)
}

func TestCacheHitStillBumpsAccess(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	n := ingest(t, s, nil, nil, "postgres connection pooling")

	_, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	second, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	require.Equal(t, uint64(1), e.Stats().CacheHits)

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount, "a served cache entry is still an access")
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].Node.AccessCount)
}

func TestSearchCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	ingest(t, s, nil, nil, "postgres connection pooling")
	first, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	ingest(t, s, nil, nil, "postgres failover runbook")
	e.Invalidate()

	second, err := e.Search(ctx, "postgres", Filters{})
	require.NoError(t, err)
	assert.Len(t, second, 2, "invalidation must expose the new node")
}

func TestSearchTouchesResults(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	n := ingest(t, s, nil, nil, "postgres basics")
	results, err := e.Search(ctx, "postgres", Filters{NoCache: true})
	require.NoError(t, err)
	require.Len(t, results, 1)

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.Equal(t, brain.StateActive, got.State)
}

func TestRelated(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	e := newEngine(t, s, nil, nil)

	center := ingest(t, s, nil, nil, "center")
	strong := ingest(t, s, nil, nil, "strong neighbor")
	weak := ingest(t, s, nil, nil, "weak neighbor")
	require.NoError(t, s.UpsertEdge(ctx, brain.NewConnection(center.ID, strong.ID, brain.ConnSemantic, 0.9, baseTime)))
	require.NoError(t, s.UpsertEdge(ctx, brain.NewConnection(weak.ID, center.ID, brain.ConnTemporal, 0.2, baseTime)))

	related, err := e.Related(ctx, center.ID, 10)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, strong.ID, related[0].Node.ID)
	assert.Equal(t, []string{string(brain.ConnSemantic)}, related[0].MatchTypes)
	assert.Equal(t, weak.ID, related[1].Node.ID)

	_, err = e.Related(ctx, "nope", 10)
	assert.True(t, brain.IsNotFound(err))
}
