// Package lifecycle runs the maintenance passes that keep the memory graph
// healthy: state promotion, decay to dormancy, short-term capacity
// enforcement, layer promotion out of working memory, and edge decay with
// pruning.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/neurabase/brain-go-sdk/brain"
)

// edgeDecayEpsilon is the smallest strength drop worth persisting; below it a
// sweep leaves the stored edge untouched.
const edgeDecayEpsilon = 0.01

// Report summarizes one sweep.
type Report struct {
	Scanned      int
	Activated    int // fresh -> active
	Stabilized   int // active -> stable
	Consolidated int // stable -> consolidated
	Demoted      int // -> dormant
	Relayered    int // promoted out of short_term
	EdgesDecayed int
	EdgesPruned  int
}

// Manager runs lifecycle maintenance against a store.
type Manager struct {
	store brain.Store
	cfg   *brain.Config
	clock brain.Clock
	log   *zap.Logger
}

// New creates a lifecycle manager.
func New(store brain.Store, cfg *brain.Config, clock brain.Clock, log *zap.Logger) *Manager {
	if clock == nil {
		clock = brain.SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, cfg: cfg, clock: clock, log: log.Named("lifecycle")}
}

// Sweep runs one full maintenance pass: node state transitions and decay
// first, then capacity enforcement, then edge decay and pruning.
func (m *Manager) Sweep(ctx context.Context) (Report, error) {
	var r Report

	nodes, err := m.store.Query(ctx, nil)
	if err != nil {
		return r, fmt.Errorf("load nodes: %w", err)
	}
	r.Scanned = len(nodes)
	now := m.clock.Now()

	for _, n := range nodes {
		if n.State == brain.StateDormant {
			continue
		}
		changed := m.sweepNode(n, now, &r)
		if changed {
			if err := m.store.Put(ctx, n); err != nil {
				return r, fmt.Errorf("persist node %s: %w", n.ID, err)
			}
		}
	}

	if err := m.EnforceCapacity(ctx); err != nil {
		// Over capacity with nothing demotable is a standing condition, not a
		// sweep failure.
		var capErr *brain.CapacityError
		if !errors.As(err, &capErr) {
			return r, err
		}
		m.log.Warn("short-term tier over capacity", zap.Error(err))
	}

	if err := m.decayEdges(ctx, now, &r); err != nil {
		return r, err
	}

	m.log.Info("sweep complete",
		zap.Int("scanned", r.Scanned),
		zap.Int("stabilized", r.Stabilized),
		zap.Int("consolidated", r.Consolidated),
		zap.Int("demoted", r.Demoted),
		zap.Int("relayered", r.Relayered),
		zap.Int("edges_pruned", r.EdgesPruned))
	return r, nil
}

// sweepNode applies state, decay, and layer rules to one node in place and
// reports whether it changed.
func (m *Manager) sweepNode(n *brain.Node, now time.Time, r *Report) bool {
	changed := false

	// Decay first: a node idle past its effective window goes dormant and
	// loses weight, regardless of how far it had progressed.
	if now.Sub(n.LastAccessed) > m.effectiveWindow(n) {
		if n.TransitionState(brain.StateDormant) {
			n.AdjustWeight(-n.DecayRate)
			r.Demoted++
			return true
		}
	}

	switch {
	case n.AccessCount >= m.cfg.ConsolidationThreshold && n.IntegrationDepth >= m.cfg.ConsolidationMinDepth:
		if n.TransitionState(brain.StateConsolidated) {
			r.Consolidated++
			changed = true
		}
	case n.AccessCount >= m.cfg.PromotionThreshold:
		if n.TransitionState(brain.StateStable) {
			r.Stabilized++
			changed = true
		}
	case n.AccessCount > 0:
		if n.TransitionState(brain.StateActive) {
			r.Activated++
			changed = true
		}
	}

	// Well-used working memories graduate to a durable layer.
	if n.Layer == brain.LayerShortTerm && n.AccessCount >= m.cfg.PromotionThreshold {
		n.Layer = durableLayer(n)
		n.PriorityReview = false
		r.Relayered++
		changed = true
	}

	if n.PriorityReview && n.Layer != brain.LayerShortTerm {
		n.PriorityReview = false
		changed = true
	}

	return changed
}

// effectiveWindow is how long a node may sit idle before going dormant. A
// higher decay rate shortens the window.
func (m *Manager) effectiveWindow(n *brain.Node) time.Duration {
	rate := n.DecayRate
	if rate <= 0 {
		rate = 1
	}
	return time.Duration(float64(m.cfg.BaseDecayWindow) / rate)
}

// durableLayer picks the destination layer for a node leaving working memory:
// skills become procedural, classified knowledge becomes semantic, the rest is
// plain long-term.
func durableLayer(n *brain.Node) brain.MemoryLayer {
	if len(n.SkillPath) > 0 {
		return brain.LayerProcedural
	}
	if len(n.TopicPath) > 0 {
		return brain.LayerSemantic
	}
	return brain.LayerLongTerm
}

// EnforceCapacity brings the short-term tier back under its limit. For each
// node over the limit it makes exactly one decision on the least recently
// accessed candidate: graduate it if it has earned promotion, otherwise set it
// dormant. Nodes at or above the protected weight are exempt; if only
// protected nodes remain, a CapacityError is returned.
func (m *Manager) EnforceCapacity(ctx context.Context) error {
	working, err := m.store.Query(ctx, func(n *brain.Node) bool {
		return n.Layer == brain.LayerShortTerm && n.State != brain.StateDormant
	})
	if err != nil {
		return fmt.Errorf("load working set: %w", err)
	}
	excess := len(working) - m.cfg.ShortTermLimit
	if excess <= 0 {
		return nil
	}

	// Priority-review nodes first, then least recently accessed.
	sort.SliceStable(working, func(i, j int) bool {
		if working[i].PriorityReview != working[j].PriorityReview {
			return working[i].PriorityReview
		}
		return working[i].LastAccessed.Before(working[j].LastAccessed)
	})

	for _, n := range working {
		if excess == 0 {
			return nil
		}
		if n.EmotionalWeight >= m.cfg.ProtectedWeight {
			continue
		}
		if n.AccessCount >= m.cfg.PromotionThreshold {
			n.Layer = durableLayer(n)
			m.log.Debug("capacity promotion", zap.String("node", n.ID), zap.String("layer", string(n.Layer)))
		} else {
			n.TransitionState(brain.StateDormant)
			m.log.Debug("capacity demotion", zap.String("node", n.ID))
		}
		n.PriorityReview = false
		if err := m.store.Put(ctx, n); err != nil {
			return fmt.Errorf("persist node %s: %w", n.ID, err)
		}
		excess--
	}
	if excess > 0 {
		return &brain.CapacityError{Layer: brain.LayerShortTerm, Limit: m.cfg.ShortTermLimit}
	}
	return nil
}

// decayEdges applies exponential decay to every edge by the time since its
// last reinforcement and prunes edges that fall below the strength threshold.
func (m *Manager) decayEdges(ctx context.Context, now time.Time, r *Report) error {
	edges, err := m.store.Edges(ctx)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}
	for _, edge := range edges {
		idle := now.Sub(edge.LastReinforced)
		if idle <= 0 {
			continue
		}
		decayed := edge.Strength * math.Exp(-math.Ln2*float64(idle)/float64(m.cfg.EdgeHalfLife))
		if decayed < m.cfg.ConnectionStrengthThreshold {
			if err := m.store.DeleteEdge(ctx, edge.Key()); err != nil {
				return fmt.Errorf("prune edge: %w", err)
			}
			r.EdgesPruned++
			continue
		}
		if edge.Strength-decayed < edgeDecayEpsilon {
			continue
		}
		edge.Strength = decayed
		if err := m.store.UpsertEdge(ctx, edge); err != nil {
			return fmt.Errorf("persist edge: %w", err)
		}
		r.EdgesDecayed++
	}
	return nil
}
