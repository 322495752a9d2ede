// Package connect discovers typed relationships between a newly stored node
// and the existing population, and maintains each node's integration depth.
package connect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/neurabase/brain-go-sdk/brain"
)

// Per-type caps on how many edges a single discovery pass may create. The
// strongest candidates win; the rest are simply not recorded.
const (
	maxSemantic   = 10
	maxContextual = 10
	maxTemporal   = 5
	maxCausal     = 5
	maxFunctional = 10
	maxAnalogical = 5
)

// analogicalFloor is the minimum shape overlap for an analogical edge.
const analogicalFloor = 0.5

// Engine discovers and reinforces connections.
type Engine struct {
	store brain.Store
	cfg   *brain.Config
	clock brain.Clock
	log   *zap.Logger
}

// New creates a connection engine.
func New(store brain.Store, cfg *brain.Config, clock brain.Clock, log *zap.Logger) *Engine {
	if clock == nil {
		clock = brain.SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, cfg: cfg, clock: clock, log: log.Named("connect")}
}

// proposal is a candidate edge produced by one detector.
type proposal struct {
	target   *brain.Node
	typ      brain.ConnectionType
	strength float64
	// reversed puts the candidate as the edge source, used for causal edges
	// where the earlier memory is the cause.
	reversed bool
}

// Discover compares a node against the stored population, records the edges
// each detector finds, and refreshes integration depth on every touched node.
// Returns the number of edges created or reinforced.
func (e *Engine) Discover(ctx context.Context, n *brain.Node) (int, error) {
	candidates, err := e.store.Query(ctx, func(m *brain.Node) bool {
		return m.ID != n.ID
	})
	if err != nil {
		return 0, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	byType := make(map[brain.ConnectionType][]proposal)
	for _, cand := range candidates {
		for _, p := range e.detect(n, cand) {
			byType[p.typ] = append(byType[p.typ], p)
		}
	}

	total := 0
	touched := map[string]bool{n.ID: true}
	for _, typ := range brain.ConnectionTypes {
		props := byType[typ]
		sort.SliceStable(props, func(i, j int) bool {
			return props[i].strength > props[j].strength
		})
		if limit := typeCap(typ); len(props) > limit {
			props = props[:limit]
		}
		for _, p := range props {
			if err := e.record(ctx, n, p); err != nil {
				return total, err
			}
			touched[p.target.ID] = true
			total++
		}
	}

	for id := range touched {
		if err := e.refreshDepth(ctx, id); err != nil {
			return total, err
		}
	}
	if total > 0 {
		e.log.Debug("connections discovered",
			zap.String("node", n.ID), zap.Int("edges", total))
	}
	return total, nil
}

// detect runs every detector for one candidate pair.
func (e *Engine) detect(n, cand *brain.Node) []proposal {
	var out []proposal

	if sim := brain.CosineSimilarity(n.Embedding, cand.Embedding); sim >= e.cfg.SimilarityThreshold {
		out = append(out, proposal{target: cand, typ: brain.ConnSemantic, strength: sim})
	}

	if gap := absDuration(n.CreatedAt.Sub(cand.CreatedAt)); gap <= e.cfg.TemporalWindow {
		frac := 1 - float64(gap)/float64(e.cfg.TemporalWindow)
		out = append(out, proposal{
			target:   cand,
			typ:      brain.ConnTemporal,
			strength: e.cfg.TemporalMaxStrength * frac,
		})
	}

	if n.ProjectID != "" && n.ProjectID == cand.ProjectID {
		out = append(out, proposal{target: cand, typ: brain.ConnContextual, strength: e.cfg.ContextualStrength})
	}

	if s, ok := causalStrength(n, cand); ok {
		// The earlier memory is the cause.
		out = append(out, proposal{
			target:   cand,
			typ:      brain.ConnCausal,
			strength: s,
			reversed: cand.CreatedAt.Before(n.CreatedAt),
		})
	}

	if s, ok := functionalStrength(n, cand); ok {
		out = append(out, proposal{target: cand, typ: brain.ConnFunctional, strength: s})
	}

	if overlap := brain.PatternOverlap(brain.Patterns(n.Content), brain.Patterns(cand.Content)); overlap >= analogicalFloor {
		out = append(out, proposal{target: cand, typ: brain.ConnAnalogical, strength: overlap * 0.8})
	}

	return out
}

// record writes one edge, reinforcing an existing edge with the same key
// instead of resetting its strength.
func (e *Engine) record(ctx context.Context, n *brain.Node, p proposal) error {
	source, target := n.ID, p.target.ID
	if p.reversed {
		source, target = target, source
	}
	now := e.clock.Now()

	key := brain.EdgeKey{SourceID: source, TargetID: target, Type: p.typ}
	existing, err := e.store.Edge(ctx, key)
	switch {
	case err == nil:
		existing.Reinforce(e.cfg.ReinforcementRate, now)
		return e.store.UpsertEdge(ctx, existing)
	case brain.IsNotFound(err):
		return e.store.UpsertEdge(ctx, brain.NewConnection(source, target, p.typ, p.strength, now))
	default:
		return fmt.Errorf("lookup edge: %w", err)
	}
}

// Reinforce strengthens an existing edge by one learning-rate step.
func (e *Engine) Reinforce(ctx context.Context, key brain.EdgeKey) (*brain.Connection, error) {
	edge, err := e.store.Edge(ctx, key)
	if err != nil {
		return nil, err
	}
	edge.Reinforce(e.cfg.ReinforcementRate, e.clock.Now())
	if err := e.store.UpsertEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// refreshDepth recomputes integration depth as the sum of incident edge
// strengths, saturating at IntegrationScale.
func (e *Engine) refreshDepth(ctx context.Context, id string) error {
	node, err := e.store.Get(ctx, id)
	if err != nil {
		if brain.IsNotFound(err) {
			return nil
		}
		return err
	}
	incident, err := e.store.Incident(ctx, id)
	if err != nil {
		return err
	}
	var total float64
	for _, edge := range incident {
		total += edge.Strength
	}
	depth := total / e.cfg.IntegrationScale
	if depth > 1 {
		depth = 1
	}
	if depth == node.IntegrationDepth {
		return nil
	}
	node.IntegrationDepth = depth
	return e.store.Put(ctx, node)
}

var causalMarkers = []string{
	"because", "caused", "leads to", "led to", "due to",
	"therefore", "as a result", "which results in",
}

// causalStrength matches cause-effect phrasing backed by topical overlap, so
// any two memories that both happen to say "because" do not get linked.
func causalStrength(a, b *brain.Node) (float64, bool) {
	la, lb := strings.ToLower(a.Content), strings.ToLower(b.Content)
	marked := false
	for _, m := range causalMarkers {
		if strings.Contains(la, m) || strings.Contains(lb, m) {
			marked = true
			break
		}
	}
	if !marked {
		return 0, false
	}
	shared := sharedKeywords(la, lb)
	if shared < 2 {
		return 0, false
	}
	s := 0.5 + 0.1*float64(shared)
	if s > 0.8 {
		s = 0.8
	}
	return s, true
}

// functionalStrength links memories that share tags and resolve to the same
// skill leaf, i.e. the same tool or technique.
func functionalStrength(a, b *brain.Node) (float64, bool) {
	if len(a.SkillPath) == 0 || len(b.SkillPath) == 0 {
		return 0, false
	}
	if a.SkillPath[len(a.SkillPath)-1] != b.SkillPath[len(b.SkillPath)-1] {
		return 0, false
	}
	shared := 0
	for _, t := range a.Tags {
		if b.HasTag(t) {
			shared++
		}
	}
	if shared == 0 {
		return 0, false
	}
	s := 0.5 + 0.1*float64(shared)
	if s > 0.9 {
		s = 0.9
	}
	return s, true
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "have": true, "was": true, "are": true,
	"but": true, "not": true, "you": true, "all": true, "can": true,
	"will": true, "when": true, "then": true, "than": true, "into": true,
	"because": true, "therefore": true,
}

// sharedKeywords counts distinct significant words appearing in both texts.
func sharedKeywords(a, b string) int {
	set := make(map[string]bool)
	for _, w := range splitWords(a) {
		set[w] = true
	}
	shared := 0
	seen := make(map[string]bool)
	for _, w := range splitWords(b) {
		if set[w] && !seen[w] {
			seen[w] = true
			shared++
		}
	}
	return shared
}

func splitWords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, w := range fields {
		if len(w) > 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func typeCap(t brain.ConnectionType) int {
	switch t {
	case brain.ConnSemantic:
		return maxSemantic
	case brain.ConnContextual:
		return maxContextual
	case brain.ConnTemporal:
		return maxTemporal
	case brain.ConnCausal:
		return maxCausal
	case brain.ConnFunctional:
		return maxFunctional
	case brain.ConnAnalogical:
		return maxAnalogical
	}
	return 0
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
