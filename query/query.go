// Package query retrieves memories by combining four strategies: text match,
// semantic similarity, graph expansion from already-matched nodes, and
// analogical shape matching. Results are ranked by a weighted composite score
// and served through a TTL cache.
package query

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/neurabase/brain-go-sdk/brain"
)

// Per-strategy base scores and gates.
const (
	contentMatchScore = 0.8
	tagMatchScore     = 0.6
	semanticGate      = 0.5 // min index similarity to count as a semantic match
	graphEdgeGate     = 0.4 // min edge strength to follow during expansion
	analogicalGate    = 0.5 // min shape overlap for an analogical match
	recencyBoost      = 1.2
	recencyWindow     = 24 * time.Hour
)

// Filters narrows a search.
type Filters struct {
	ProjectID string
	Tags      []string
	Layer     brain.MemoryLayer // zero value: any layer
	State     brain.MemoryState // zero value: any non-dormant state
	Limit     int               // zero value: config default
	NoCache   bool
}

// Result is one ranked hit. MatchTypes lists which strategies contributed,
// e.g. "text", "semantic", "graph", "analogical".
type Result struct {
	Node       *brain.Node
	Score      float64
	MatchTypes []string
}

// Stats counts query-engine activity.
type Stats struct {
	Queries   uint64
	CacheHits uint64
	Degraded  uint64 // searches that ran without the semantic strategy
}

// Engine executes multi-strategy searches.
type Engine struct {
	store    brain.Store
	embedder brain.Embedder
	index    brain.VectorIndex
	cfg      *brain.Config
	clock    brain.Clock
	log      *zap.Logger

	cache *ristretto.Cache
	gen   atomic.Uint64

	queries   atomic.Uint64
	cacheHits atomic.Uint64
	degraded  atomic.Uint64
}

// New creates a query engine. The vector index may be nil, in which case the
// semantic strategy is skipped entirely.
func New(store brain.Store, embedder brain.Embedder, index brain.VectorIndex, cfg *brain.Config, clock brain.Clock, log *zap.Logger) (*Engine, error) {
	if clock == nil {
		clock = brain.SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		clock:    clock,
		log:      log.Named("query"),
		cache:    cache,
	}, nil
}

// Invalidate marks every cached result stale. Mutations to the graph call
// this; retrieval-driven access bumps do not, so repeating a query within the
// TTL is idempotent.
func (e *Engine) Invalidate() {
	e.gen.Add(1)
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Queries:   e.queries.Load(),
		CacheHits: e.cacheHits.Load(),
		Degraded:  e.degraded.Load(),
	}
}

// Close releases the cache.
func (e *Engine) Close() {
	e.cache.Close()
}

// Search runs every applicable strategy, merges per-node scores into a
// weighted composite, and returns ranked results. Dormant memories are
// excluded unless the filter names the dormant state explicitly.
func (e *Engine) Search(ctx context.Context, text string, f Filters) ([]Result, error) {
	e.queries.Add(1)

	key := e.cacheKey(text, f)
	if !f.NoCache {
		if v, ok := e.cache.Get(key); ok {
			if cached, ok := v.([]Result); ok {
				e.cacheHits.Add(1)
				results := cloneResults(cached)
				e.touchCurrent(ctx, results)
				return results, nil
			}
		}
	}

	candidates, err := e.store.Query(ctx, func(n *brain.Node) bool {
		return matchesFilters(n, f)
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	byID := make(map[string]*brain.Node, len(candidates))
	for _, n := range candidates {
		byID[n.ID] = n
	}

	scores := make(map[string]*strategyScores, len(candidates))
	e.textStrategy(text, candidates, scores)
	e.semanticStrategy(ctx, text, byID, scores)
	e.graphStrategy(ctx, byID, scores)
	e.analogicalStrategy(text, candidates, scores)

	results := e.rank(byID, scores, f)
	e.touch(ctx, results)

	if !f.NoCache {
		e.cache.SetWithTTL(key, cloneResults(results), 1, e.cfg.CacheTTL)
		e.cache.Wait()
	}
	return results, nil
}

// strategyScores accumulates the best score each strategy produced for a node.
type strategyScores struct {
	text       float64
	semantic   float64
	graph      float64
	analogical float64
}

func (s *strategyScores) matchTypes() []string {
	var out []string
	if s.text > 0 {
		out = append(out, "text")
	}
	if s.semantic > 0 {
		out = append(out, "semantic")
	}
	if s.graph > 0 {
		out = append(out, "graph")
	}
	if s.analogical > 0 {
		out = append(out, "analogical")
	}
	return out
}

func scoresFor(scores map[string]*strategyScores, id string) *strategyScores {
	s, ok := scores[id]
	if !ok {
		s = &strategyScores{}
		scores[id] = s
	}
	return s
}

// textStrategy scores substring matches in content and tags.
func (e *Engine) textStrategy(text string, candidates []*brain.Node, scores map[string]*strategyScores) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return
	}
	for _, n := range candidates {
		score := 0.0
		if strings.Contains(strings.ToLower(n.Content), needle) {
			score = contentMatchScore
		}
		for _, tag := range n.Tags {
			if strings.Contains(strings.ToLower(tag), needle) || strings.Contains(needle, strings.ToLower(tag)) {
				if tagMatchScore > score {
					score = tagMatchScore
				}
				break
			}
		}
		if score > 0 {
			scoresFor(scores, n.ID).text = score
		}
	}
}

// semanticStrategy embeds the query and searches the vector index. Provider
// failure degrades the search to the other strategies instead of failing it.
func (e *Engine) semanticStrategy(ctx context.Context, text string, byID map[string]*brain.Node, scores map[string]*strategyScores) {
	if e.index == nil || e.embedder == nil {
		return
	}
	embedCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()
	embedding, err := e.embedder.Embed(embedCtx, text)
	if err != nil {
		e.degraded.Add(1)
		e.log.Warn("embedding unavailable, text-only search", zap.Error(err))
		return
	}
	hits, err := e.index.Search(ctx, embedding, e.cfg.QueryLimit*2, "")
	if err != nil {
		e.degraded.Add(1)
		e.log.Warn("vector search failed, text-only search", zap.Error(err))
		return
	}
	for _, h := range hits {
		if h.Similarity < semanticGate {
			continue
		}
		if _, ok := byID[h.ID]; !ok {
			continue // filtered out or deleted since indexing
		}
		s := scoresFor(scores, h.ID)
		if h.Similarity > s.semantic {
			s.semantic = h.Similarity
		}
	}
}

// graphStrategy expands from the nodes the other strategies already matched,
// following strong edges in either direction up to the configured depth. Each
// hop discounts the score.
func (e *Engine) graphStrategy(ctx context.Context, byID map[string]*brain.Node, scores map[string]*strategyScores) {
	type frontier struct {
		id    string
		score float64
		depth int
	}
	var queue []frontier
	visited := make(map[string]bool)
	for id, s := range scores {
		if s.text > 0 || s.semantic > 0 {
			queue = append(queue, frontier{id: id, score: maxFloat(s.text, s.semantic), depth: 0})
			visited[id] = true
		}
	}
	// Deterministic expansion order.
	sort.Slice(queue, func(i, j int) bool { return queue[i].id < queue[j].id })

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= e.cfg.GraphDepth {
			continue
		}
		incident, err := e.store.Incident(ctx, cur.id)
		if err != nil {
			e.log.Warn("graph expansion failed", zap.String("node", cur.id), zap.Error(err))
			continue
		}
		for _, edge := range incident {
			next := edge.TargetID
			if next == cur.id {
				next = edge.SourceID
			}
			if visited[next] || edge.Strength <= graphEdgeGate {
				continue
			}
			if _, ok := byID[next]; !ok {
				continue
			}
			visited[next] = true
			score := cur.score * edge.Strength * e.cfg.GraphDepthDecay
			if score > scoresFor(scores, next).graph {
				scores[next].graph = score
			}
			queue = append(queue, frontier{id: next, score: score, depth: cur.depth + 1})
		}
	}
}

// analogicalStrategy matches candidates whose structural shape overlaps the
// query's shape.
func (e *Engine) analogicalStrategy(text string, candidates []*brain.Node, scores map[string]*strategyScores) {
	queryShapes := brain.Patterns(text)
	if len(queryShapes) == 0 {
		return
	}
	for _, n := range candidates {
		overlap := brain.PatternOverlap(queryShapes, brain.Patterns(n.Content))
		if overlap >= analogicalGate {
			s := scoresFor(scores, n.ID)
			if overlap > s.analogical {
				s.analogical = overlap
			}
		}
	}
}

// rank folds the per-strategy scores into the weighted composite, applies the
// floor and the recency boost, and sorts.
func (e *Engine) rank(byID map[string]*brain.Node, scores map[string]*strategyScores, f Filters) []Result {
	w := e.cfg.RankWeights
	now := e.clock.Now()

	results := make([]Result, 0, len(scores))
	for id, s := range scores {
		n, ok := byID[id]
		if !ok {
			continue
		}
		// Analogical hits ride the graph weight: both measure relatedness
		// rather than direct relevance.
		structural := maxFloat(s.graph, s.analogical)
		score := w.Text*s.text + w.Semantic*s.semantic + w.Graph*structural + w.Emotional*n.EmotionalWeight
		score *= 1 + 0.3*n.EmotionalWeight
		if now.Sub(n.LastAccessed) < recencyWindow {
			score *= recencyBoost
		}
		if score < e.cfg.SimilarityFloor {
			continue
		}
		results = append(results, Result{Node: n, Score: score, MatchTypes: s.matchTypes()})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Node.LastAccessed.After(results[j].Node.LastAccessed)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = e.cfg.QueryLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// touch records the retrieval on every returned node. Access bumps do not
// invalidate the cache.
func (e *Engine) touch(ctx context.Context, results []Result) {
	now := e.clock.Now()
	for _, r := range results {
		r.Node.Touch(now)
		if err := e.store.Put(ctx, r.Node); err != nil {
			e.log.Warn("access bump failed", zap.String("node", r.Node.ID), zap.Error(err))
		}
	}
}

// touchCurrent bumps access on the live store records behind a cached result
// list. The cached scores and ordering stay frozen; the refreshed nodes are
// swapped into the returned slice so callers see current access counts.
// Nodes forgotten since the entry was cached are skipped.
func (e *Engine) touchCurrent(ctx context.Context, results []Result) {
	now := e.clock.Now()
	for i, r := range results {
		n, err := e.store.Get(ctx, r.Node.ID)
		if err != nil {
			if !brain.IsNotFound(err) {
				e.log.Warn("access bump failed", zap.String("node", r.Node.ID), zap.Error(err))
			}
			continue
		}
		n.Touch(now)
		if err := e.store.Put(ctx, n); err != nil {
			e.log.Warn("access bump failed", zap.String("node", n.ID), zap.Error(err))
			continue
		}
		results[i].Node = n
	}
}

// Related returns the strongest edges touching a node together with the node
// on the far end, sorted by strength.
func (e *Engine) Related(ctx context.Context, id string, limit int) ([]Result, error) {
	if _, err := e.store.Get(ctx, id); err != nil {
		return nil, err
	}
	incident, err := e.store.Incident(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(incident, func(i, j int) bool {
		return incident[i].Strength > incident[j].Strength
	})
	if limit <= 0 {
		limit = e.cfg.QueryLimit
	}

	var out []Result
	for _, edge := range incident {
		if len(out) == limit {
			break
		}
		other := edge.TargetID
		if other == id {
			other = edge.SourceID
		}
		n, err := e.store.Get(ctx, other)
		if err != nil {
			continue // pruned concurrently
		}
		out = append(out, Result{
			Node:       n,
			Score:      edge.Strength,
			MatchTypes: []string{string(edge.Type)},
		})
	}
	return out, nil
}

// matchesFilters applies the search filters. With no explicit state filter,
// dormant nodes are invisible.
func matchesFilters(n *brain.Node, f Filters) bool {
	if f.State != "" {
		if n.State != f.State {
			return false
		}
	} else if n.State == brain.StateDormant {
		return false
	}
	if f.ProjectID != "" && n.ProjectID != f.ProjectID {
		return false
	}
	if f.Layer != "" && n.Layer != f.Layer {
		return false
	}
	for _, tag := range f.Tags {
		if !n.HasTag(tag) {
			return false
		}
	}
	return true
}

// cacheKey hashes the query text, the filters, and the current generation.
func (e *Engine) cacheKey(text string, f Filters) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%d|", e.gen.Load(), text, f.ProjectID, f.Layer, f.State, f.Limit)
	for _, t := range f.Tags {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum64())
}

func cloneResults(in []Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = Result{
			Node:       r.Node.Clone(),
			Score:      r.Score,
			MatchTypes: append([]string(nil), r.MatchTypes...),
		}
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
