package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurabase/brain-go-sdk/brain"
	"github.com/neurabase/brain-go-sdk/brain/embedder/mock"
	chromemindex "github.com/neurabase/brain-go-sdk/brain/index/chromem"
	"github.com/neurabase/brain-go-sdk/brain/store/memstore"
	"github.com/neurabase/brain-go-sdk/decide"
	"github.com/neurabase/brain-go-sdk/query"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// failingEmbedder simulates an unavailable embedding provider.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, brain.ErrEmbeddingUnavailable
}
func (failingEmbedder) Dimensions() int { return 4 }

func testConfig() *brain.Config {
	cfg := brain.DefaultConfig()
	cfg.SimilarityThreshold = 0.5 // the token-hash embedder produces modest cosines
	return cfg
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	clock := newTestClock()
	base := []Option{
		WithConfig(testConfig()),
		WithClock(clock),
		WithIndex(chromemindex.New()),
	}
	e, err := New(memstore.New(), mock.New(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, clock
}

func TestIngestClassifiesAndStores(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	n, err := e.Ingest(ctx, IngestRequest{
		Content:   "how to rotate credentials: step 1 revoke, step 2 reissue",
		Kind:      brain.KindFact,
		Tags:      []string{"security"},
		ProjectID: "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, brain.LayerProcedural, n.Layer)
	assert.Equal(t, brain.StateFresh, n.State)
	assert.NotEmpty(t, n.Embedding)

	got, err := e.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Content, got.Content)
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Ingest(context.Background(), IngestRequest{Content: "   "})
	assert.Error(t, err)
}

// Two related memories in the same project end up linked both semantically
// and contextually.
func TestIngestDiscoversConnections(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	first, err := e.Ingest(ctx, IngestRequest{
		Content:   "react hooks manage component state",
		ProjectID: "webapp",
	})
	require.NoError(t, err)
	second, err := e.Ingest(ctx, IngestRequest{
		Content:   "react hooks component state cleanup",
		ProjectID: "webapp",
	})
	require.NoError(t, err)

	sem, err := e.store.Edge(ctx, brain.EdgeKey{SourceID: second.ID, TargetID: first.ID, Type: brain.ConnSemantic})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sem.Strength, 0.3)

	cctx, err := e.store.Edge(ctx, brain.EdgeKey{SourceID: second.ID, TargetID: first.ID, Type: brain.ConnContextual})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cctx.Strength, 0.3)

	related, err := e.Related(ctx, first.ID, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, related)
}

func TestQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	n, err := e.Ingest(ctx, IngestRequest{Content: "postgres connection pooling guide"})
	require.NoError(t, err)
	_, err = e.Ingest(ctx, IngestRequest{Content: "docker compose networking"})
	require.NoError(t, err)

	results, err := e.Query(ctx, "postgres", query.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, n.ID, results[0].Node.ID)
}

// Repeated access drives a memory through active and stable; long idleness
// sends it dormant and out of default search results.
func TestLifecycleProgressionAndDormancy(t *testing.T) {
	ctx := context.Background()
	e, clock := newTestEngine(t)

	n, err := e.Ingest(ctx, IngestRequest{Content: "kafka partition rebalancing notes"})
	require.NoError(t, err)

	for i := 0; i < e.cfg.PromotionThreshold; i++ {
		_, err := e.Query(ctx, "kafka", query.Filters{NoCache: true})
		require.NoError(t, err)
	}
	got, err := e.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, e.cfg.PromotionThreshold, got.AccessCount)
	assert.Equal(t, brain.StateActive, got.State)

	_, err = e.Sweep(ctx)
	require.NoError(t, err)
	got, err = e.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, brain.StateStable, got.State)

	// Idle far past the effective decay window.
	clock.Advance(1000 * time.Hour)
	_, err = e.Sweep(ctx)
	require.NoError(t, err)
	got, err = e.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, brain.StateDormant, got.State)

	results, err := e.Query(ctx, "kafka", query.Filters{NoCache: true})
	require.NoError(t, err)
	assert.Empty(t, results, "dormant memories are invisible by default")

	revived, err := e.Query(ctx, "kafka", query.Filters{State: brain.StateDormant, NoCache: true})
	require.NoError(t, err)
	require.Len(t, revived, 1)
	assert.Equal(t, n.ID, revived[0].Node.ID)
}

// Ingesting past the short-term limit makes exactly one room-making decision.
func TestIngestCapacityEviction(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.ShortTermLimit = 3
	e, clock := newTestEngine(t, WithConfig(cfg))

	var first *brain.Node
	for i := 0; i < 4; i++ {
		n, err := e.Ingest(ctx, IngestRequest{Content: fmt.Sprintf("scratch note number %d", i)})
		require.NoError(t, err)
		if i == 0 {
			first = n
		}
		clock.Advance(time.Minute)
	}

	got, err := e.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, brain.StateDormant, got.State, "the least recently accessed note makes room")

	live, err := e.store.Query(ctx, func(n *brain.Node) bool {
		return n.Layer == brain.LayerShortTerm && n.State != brain.StateDormant
	})
	require.NoError(t, err)
	assert.Len(t, live, 3)
}

// With every short-term memory protected, ingestion still succeeds and the
// new memory is flagged for priority review.
func TestIngestCapacityAllProtected(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.ShortTermLimit = 2
	e, clock := newTestEngine(t, WithConfig(cfg))

	for i := 0; i < 2; i++ {
		_, err := e.Ingest(ctx, IngestRequest{Content: fmt.Sprintf("critical urgent incident %d", i)})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	over, err := e.Ingest(ctx, IngestRequest{Content: "critical urgent incident overflow"})
	require.NoError(t, err, "capacity pressure must not fail ingestion")
	assert.True(t, over.PriorityReview)

	// Flagging must not clobber what discovery already wrote to the record.
	incident, err := e.store.Incident(ctx, over.ID)
	require.NoError(t, err)
	require.NotEmpty(t, incident, "similar incidents should connect")
	assert.Greater(t, over.IntegrationDepth, 0.0)
}

// A strong procedural match yields a memory_reuse decision; an empty memory
// yields new_creation.
func TestDecideAndReportOutcome(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	out, err := e.Decide(ctx, "migrate the database", "implementation", query.Filters{})
	require.NoError(t, err)
	assert.Equal(t, decide.NewCreation, out.Decision)

	proc, err := e.Ingest(ctx, IngestRequest{
		Content: "how to migrate the database: step 1 snapshot, step 2 replay",
		Kind:    brain.KindProcedure,
	})
	require.NoError(t, err)

	out, err = e.Decide(ctx, "migrate the database", "implementation", query.Filters{})
	require.NoError(t, err)
	assert.Equal(t, decide.MemoryReuse, out.Decision)
	assert.GreaterOrEqual(t, out.Confidence, e.cfg.HighConfidence)

	before, err := e.Get(ctx, proc.ID)
	require.NoError(t, err)
	require.NoError(t, e.ReportOutcome(ctx, out.ID, true))
	after, err := e.Get(ctx, proc.ID)
	require.NoError(t, err)
	assert.Greater(t, after.EmotionalWeight, before.EmotionalWeight)

	// The outcome itself became an experience memory.
	experiences, err := e.store.Query(ctx, func(n *brain.Node) bool {
		return n.Kind == brain.KindExperience
	})
	require.NoError(t, err)
	assert.NotEmpty(t, experiences)

	stats := e.DecisionStats()
	assert.Equal(t, 1, stats[decide.MemoryReuse].Successes)
}

// An unavailable embedding provider degrades search to text strategies
// instead of failing it.
func TestQueryDegradesWithoutEmbeddings(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	e, err := New(memstore.New(), failingEmbedder{},
		WithConfig(testConfig()), WithClock(clock), WithIndex(chromemindex.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	n, err := e.Ingest(ctx, IngestRequest{Content: "terraform state locking"})
	require.NoError(t, err)
	assert.Empty(t, n.Embedding)

	results, err := e.Query(ctx, "terraform", query.Filters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, n.ID, results[0].Node.ID)
	assert.Equal(t, uint64(1), e.QueryStats().Degraded)
}

func TestPromoteAndForget(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	n, err := e.Ingest(ctx, IngestRequest{Content: "team retro notes"})
	require.NoError(t, err)

	weight := 0.9
	require.NoError(t, e.Promote(ctx, brain.LayerLongTerm, &weight, n.ID))
	promoted, err := e.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, brain.LayerLongTerm, promoted.Layer)
	assert.InDelta(t, 0.9, promoted.EmotionalWeight, 1e-9)

	err = e.Promote(ctx, brain.MemoryLayer("bogus"), nil, n.ID)
	assert.Error(t, err)

	require.NoError(t, e.Forget(ctx, n.ID))
	_, err = e.Get(ctx, n.ID)
	assert.True(t, brain.IsNotFound(err))
}

func TestInsights(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.Ingest(ctx, IngestRequest{Content: "react hooks for the frontend", Tags: []string{"programming"}, ProjectID: "webapp"})
	require.NoError(t, err)
	_, err = e.Ingest(ctx, IngestRequest{Content: "react component state patterns", Tags: []string{"programming"}, ProjectID: "webapp"})
	require.NoError(t, err)

	ins, err := e.Insights(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, ins.Nodes)
	assert.Equal(t, 2, ins.Layers[brain.LayerShortTerm])
	assert.NotEmpty(t, ins.TopTopics)
	assert.Greater(t, ins.Connections[brain.ConnContextual], 0)

	scoped, err := e.Insights(ctx, "webapp")
	require.NoError(t, err)
	assert.Equal(t, 2, scoped.Nodes)
	empty, err := e.Insights(ctx, "other")
	require.NoError(t, err)
	assert.Zero(t, empty.Nodes)
}

func TestRunBackgroundSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e, _ := newTestEngine(t)

	e.Run(ctx, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, e.Close())
}
