// Package engine wires the memory subsystems into one facade: ingestion with
// classification and connection discovery, multi-strategy retrieval, lifecycle
// maintenance, and outcome-driven decisions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/neurabase/brain-go-sdk/brain"
	"github.com/neurabase/brain-go-sdk/classify"
	"github.com/neurabase/brain-go-sdk/connect"
	"github.com/neurabase/brain-go-sdk/decide"
	"github.com/neurabase/brain-go-sdk/lifecycle"
	"github.com/neurabase/brain-go-sdk/query"
)

// Engine is the memory engine facade. All mutating operations are safe for
// concurrent use; consistency is per node and per edge, never cross-entity.
type Engine struct {
	cfg      *brain.Config
	store    brain.Store
	embedder brain.Embedder
	index    brain.VectorIndex
	clock    brain.Clock
	log      *zap.Logger

	classifier *classify.Classifier
	connector  *connect.Engine
	lifecycle  *lifecycle.Manager
	queries    *query.Engine
	decisions  *decide.Engine

	topics *brain.Hierarchy
	skills *brain.Hierarchy

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithConfig overrides the default configuration.
func WithConfig(cfg *brain.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithClock overrides the time source, used by tests to drive decay.
func WithClock(clock brain.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithIndex sets the vector index backing the semantic search strategy.
// Without one, searches run text, graph, and analogical strategies only.
func WithIndex(ix brain.VectorIndex) Option {
	return func(e *Engine) {
		e.index = ix
	}
}

// WithHierarchies overrides the stock topic and skill trees.
func WithHierarchies(topics, skills *brain.Hierarchy) Option {
	return func(e *Engine) {
		e.topics = topics
		e.skills = skills
	}
}

// New creates a memory engine on the given store. The embedder may be nil;
// ingestion then stores nodes without embeddings and search skips the
// semantic strategy.
func New(store brain.Store, embedder brain.Embedder, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    store,
		embedder: embedder,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg == nil {
		e.cfg = brain.DefaultConfig()
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if e.clock == nil {
		e.clock = brain.SystemClock()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}

	e.classifier = classify.New(e.topics, e.skills, e.log)
	e.connector = connect.New(store, e.cfg, e.clock, e.log)
	e.lifecycle = lifecycle.New(store, e.cfg, e.clock, e.log)

	queries, err := query.New(store, embedder, e.index, e.cfg, e.clock, e.log)
	if err != nil {
		return nil, err
	}
	e.queries = queries
	e.decisions = decide.New(store, e.cfg, e, e.log)
	return e, nil
}

// IngestRequest describes a memory to store.
type IngestRequest struct {
	// Content is the memory text. Required.
	Content string

	// Kind declares what the content is; it biases layer assignment.
	Kind brain.ContentKind

	// Tags are free-form labels used for filtering and functional linking.
	Tags []string

	// ProjectID scopes the memory to a working context.
	ProjectID string
}

// Ingest stores a new memory: embed, classify, persist, index, discover
// connections, and enforce working-memory capacity. Embedding failure does
// not fail ingestion; the node is stored without a vector.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*brain.Node, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, errors.New("content is required")
	}

	n := brain.NewNode(req.Content, req.Kind, req.Tags, req.ProjectID, e.clock.Now())
	if e.embedder != nil {
		embedCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
		vec, err := e.embedder.Embed(embedCtx, req.Content)
		cancel()
		if err != nil {
			e.log.Warn("embedding failed, storing without vector",
				zap.String("node", n.ID), zap.Error(err))
		} else {
			n.Embedding = vec
		}
	}

	e.classifier.Classify(n)

	if err := e.store.Put(ctx, n); err != nil {
		return nil, fmt.Errorf("store node: %w", err)
	}
	if e.index != nil && n.Embedding != nil {
		if err := e.index.Add(ctx, n.ID, n.ProjectID, n.Embedding); err != nil {
			e.log.Warn("vector indexing failed", zap.String("node", n.ID), zap.Error(err))
		}
	}

	if _, err := e.connector.Discover(ctx, n); err != nil {
		return nil, fmt.Errorf("discover connections: %w", err)
	}
	e.queries.Invalidate()

	if err := e.lifecycle.EnforceCapacity(ctx); err != nil {
		var capErr *brain.CapacityError
		if !errors.As(err, &capErr) {
			return nil, err
		}
		// Nothing demotable: keep the node, flag it for the next sweep.
		// Re-read before flagging, discovery has already updated the record.
		current, err := e.store.Get(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("flag priority review: %w", err)
		}
		current.PriorityReview = true
		if err := e.store.Put(ctx, current); err != nil {
			return nil, fmt.Errorf("flag priority review: %w", err)
		}
		e.log.Warn("ingested over capacity", zap.String("node", n.ID), zap.Error(capErr))
	}

	// Return the stored record, connection discovery may have updated it.
	stored, err := e.store.Get(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// RecordExperience stores outcome feedback as an experience memory. It also
// satisfies the decision engine's Recorder.
func (e *Engine) RecordExperience(ctx context.Context, content string, tags []string) error {
	_, err := e.Ingest(ctx, IngestRequest{Content: content, Kind: brain.KindExperience, Tags: tags})
	return err
}

// Query searches memories with every applicable strategy.
func (e *Engine) Query(ctx context.Context, text string, f query.Filters) ([]query.Result, error) {
	return e.queries.Search(ctx, text, f)
}

// Related returns the memories most strongly connected to the given one.
func (e *Engine) Related(ctx context.Context, id string, limit int) ([]query.Result, error) {
	return e.queries.Related(ctx, id, limit)
}

// Get returns one memory by id.
func (e *Engine) Get(ctx context.Context, id string) (*brain.Node, error) {
	return e.store.Get(ctx, id)
}

// Forget removes a memory and all of its connections.
func (e *Engine) Forget(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.queries.Invalidate()
	return nil
}

// Promote moves memories to a durable layer by hand, bypassing the usage
// thresholds. A non-nil weight also overrides each node's emotional weight.
func (e *Engine) Promote(ctx context.Context, layer brain.MemoryLayer, weight *float64, ids ...string) error {
	if !layer.Valid() {
		return fmt.Errorf("invalid layer %q", layer)
	}
	for _, id := range ids {
		n, err := e.store.Get(ctx, id)
		if err != nil {
			return err
		}
		n.Layer = layer
		n.PriorityReview = false
		if weight != nil {
			n.EmotionalWeight = *weight
			n.AdjustWeight(0) // clamp
		}
		if err := e.store.Put(ctx, n); err != nil {
			return err
		}
	}
	e.queries.Invalidate()
	return nil
}

// Decide searches for the task and maps the retrieval onto a course of
// action.
func (e *Engine) Decide(ctx context.Context, task, taskType string, f query.Filters) (*decide.Outcome, error) {
	results, err := e.queries.Search(ctx, task, f)
	if err != nil {
		return nil, err
	}
	return e.decisions.Decide(ctx, task, taskType, results)
}

// ReportOutcome feeds an execution result back: the memories behind the
// decision gain or lose weight and the outcome is stored as an experience.
func (e *Engine) ReportOutcome(ctx context.Context, outcomeID string, success bool) error {
	if err := e.decisions.Report(ctx, outcomeID, success); err != nil {
		return err
	}
	e.queries.Invalidate()
	return nil
}

// Sweep runs one lifecycle maintenance pass immediately.
func (e *Engine) Sweep(ctx context.Context) (lifecycle.Report, error) {
	r, err := e.lifecycle.Sweep(ctx)
	if err != nil {
		return r, err
	}
	e.queries.Invalidate()
	return r, nil
}

// Run sweeps on the given interval until the context is canceled or the
// engine is closed.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
				if _, err := e.Sweep(ctx); err != nil {
					e.log.Error("background sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Close stops background maintenance and releases resources. Close is
// idempotent.
func (e *Engine) Close() error {
	var err error
	e.stopOnce.Do(func() {
		close(e.stop)
		e.wg.Wait()
		e.queries.Close()
		err = e.store.Close()
	})
	return err
}

// QueryStats returns the query engine counters.
func (e *Engine) QueryStats() query.Stats {
	return e.queries.Stats()
}

// DecisionStats returns the per-decision counters.
func (e *Engine) DecisionStats() map[decide.Decision]decide.TypeStats {
	return e.decisions.Stats()
}

// TopicCount is one entry in the insight report's topic ranking.
type TopicCount struct {
	Topic string
	Count int
}

// Insights is a point-in-time report over the whole memory graph.
type Insights struct {
	Nodes           int
	Layers          map[brain.MemoryLayer]int
	States          map[brain.MemoryState]int
	Connections     map[brain.ConnectionType]int
	TopTopics       []TopicCount
	Recommendations []string
}

// Insights summarizes the memory graph and suggests maintenance actions.
// An empty projectID reports on every memory.
func (e *Engine) Insights(ctx context.Context, projectID string) (*Insights, error) {
	var pred func(*brain.Node) bool
	if projectID != "" {
		pred = func(n *brain.Node) bool { return n.ProjectID == projectID }
	}
	nodes, err := e.store.Query(ctx, pred)
	if err != nil {
		return nil, err
	}
	edges, err := e.store.Edges(ctx)
	if err != nil {
		return nil, err
	}

	ins := &Insights{
		Nodes:       len(nodes),
		Layers:      make(map[brain.MemoryLayer]int),
		States:      make(map[brain.MemoryState]int),
		Connections: make(map[brain.ConnectionType]int),
	}
	included := make(map[string]bool, len(nodes))
	topics := make(map[string]int)
	shortTermLive := 0
	for _, n := range nodes {
		included[n.ID] = true
		ins.Layers[n.Layer]++
		ins.States[n.State]++
		if len(n.TopicPath) > 0 {
			topics[strings.Join(n.TopicPath, "/")]++
		}
		if n.Layer == brain.LayerShortTerm && n.State != brain.StateDormant {
			shortTermLive++
		}
	}
	edgeCount := 0
	for _, c := range edges {
		if !included[c.SourceID] && !included[c.TargetID] {
			continue
		}
		ins.Connections[c.Type]++
		edgeCount++
	}

	for topic, count := range topics {
		ins.TopTopics = append(ins.TopTopics, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(ins.TopTopics, func(i, j int) bool {
		if ins.TopTopics[i].Count != ins.TopTopics[j].Count {
			return ins.TopTopics[i].Count > ins.TopTopics[j].Count
		}
		return ins.TopTopics[i].Topic < ins.TopTopics[j].Topic
	})
	if len(ins.TopTopics) > 10 {
		ins.TopTopics = ins.TopTopics[:10]
	}

	if shortTermLive > e.cfg.ShortTermLimit*8/10 {
		ins.Recommendations = append(ins.Recommendations,
			fmt.Sprintf("working memory at %d of %d, a sweep will graduate or retire the least used", shortTermLive, e.cfg.ShortTermLimit))
	}
	if dormant := ins.States[brain.StateDormant]; len(nodes) > 0 && dormant > len(nodes)/2 {
		ins.Recommendations = append(ins.Recommendations,
			fmt.Sprintf("%d of %d memories are dormant, consider forgetting stale ones", dormant, len(nodes)))
	}
	if len(nodes) > 1 && edgeCount < len(nodes)/2 {
		ins.Recommendations = append(ins.Recommendations,
			"the graph is sparsely connected, richer tags and project ids improve discovery")
	}
	return ins, nil
}
