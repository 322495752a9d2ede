// Package memstore provides an in-memory Store for local use and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/neurabase/brain-go-sdk/brain"
)

// MemStore keeps nodes and edges in maps guarded by a single RWMutex. Every
// record is copied on the way in and out, so a node write is atomic: readers
// see either the old record or the new one, never a mix.
type MemStore struct {
	mu        sync.RWMutex
	nodes     map[string]*brain.Node
	edges     map[brain.EdgeKey]*brain.Connection
	outgoing  map[string]map[brain.EdgeKey]struct{}
	incoming  map[string]map[brain.EdgeKey]struct{}
	byProject map[string]map[string]struct{}
}

// New creates an empty store.
func New() *MemStore {
	return &MemStore{
		nodes:     make(map[string]*brain.Node),
		edges:     make(map[brain.EdgeKey]*brain.Connection),
		outgoing:  make(map[string]map[brain.EdgeKey]struct{}),
		incoming:  make(map[string]map[brain.EdgeKey]struct{}),
		byProject: make(map[string]map[string]struct{}),
	}
}

// Put inserts or replaces a node record.
func (s *MemStore) Put(ctx context.Context, n *brain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.nodes[n.ID]; ok && old.ProjectID != n.ProjectID {
		delete(s.byProject[old.ProjectID], n.ID)
	}
	s.nodes[n.ID] = n.Clone()
	if s.byProject[n.ProjectID] == nil {
		s.byProject[n.ProjectID] = make(map[string]struct{})
	}
	s.byProject[n.ProjectID][n.ID] = struct{}{}
	return nil
}

// Get returns a copy of the node with the given id.
func (s *MemStore) Get(ctx context.Context, id string) (*brain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, &brain.NotFoundError{Kind: "node", ID: id}
	}
	return n.Clone(), nil
}

// Delete removes a node and all edges incident to it.
func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return &brain.NotFoundError{Kind: "node", ID: id}
	}
	delete(s.nodes, id)
	delete(s.byProject[n.ProjectID], id)

	for key := range s.outgoing[id] {
		s.removeEdgeLocked(key)
	}
	for key := range s.incoming[id] {
		s.removeEdgeLocked(key)
	}
	delete(s.outgoing, id)
	delete(s.incoming, id)
	return nil
}

// UpsertEdge inserts or replaces the edge with the same (source, target, type).
func (s *MemStore) UpsertEdge(ctx context.Context, c *brain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.SourceID == c.TargetID {
		return &brain.InvalidReferenceError{NodeID: c.SourceID, Reason: "self-loop"}
	}
	if _, ok := s.nodes[c.SourceID]; !ok {
		return &brain.InvalidReferenceError{NodeID: c.SourceID, Reason: "source does not exist"}
	}
	if _, ok := s.nodes[c.TargetID]; !ok {
		return &brain.InvalidReferenceError{NodeID: c.TargetID, Reason: "target does not exist"}
	}

	key := c.Key()
	s.edges[key] = c.Clone()
	if s.outgoing[c.SourceID] == nil {
		s.outgoing[c.SourceID] = make(map[brain.EdgeKey]struct{})
	}
	s.outgoing[c.SourceID][key] = struct{}{}
	if s.incoming[c.TargetID] == nil {
		s.incoming[c.TargetID] = make(map[brain.EdgeKey]struct{})
	}
	s.incoming[c.TargetID][key] = struct{}{}
	return nil
}

// Edge returns a copy of the edge with the given key.
func (s *MemStore) Edge(ctx context.Context, key brain.EdgeKey) (*brain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.edges[key]
	if !ok {
		return nil, &brain.NotFoundError{Kind: "edge", ID: key.SourceID + "->" + key.TargetID}
	}
	return c.Clone(), nil
}

// DeleteEdge removes an edge. Missing edges are ignored.
func (s *MemStore) DeleteEdge(ctx context.Context, key brain.EdgeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeEdgeLocked(key)
	return nil
}

func (s *MemStore) removeEdgeLocked(key brain.EdgeKey) {
	if _, ok := s.edges[key]; !ok {
		return
	}
	delete(s.edges, key)
	delete(s.outgoing[key.SourceID], key)
	delete(s.incoming[key.TargetID], key)
}

// Neighbors returns the edges leaving a node, optionally filtered by type.
func (s *MemStore) Neighbors(ctx context.Context, id string, types ...brain.ConnectionType) ([]*brain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, &brain.NotFoundError{Kind: "node", ID: id}
	}
	var out []*brain.Connection
	for key := range s.outgoing[id] {
		if len(types) > 0 && !typeIn(key.Type, types) {
			continue
		}
		out = append(out, s.edges[key].Clone())
	}
	return out, nil
}

// Incident returns every edge touching a node in either direction.
func (s *MemStore) Incident(ctx context.Context, id string) ([]*brain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, &brain.NotFoundError{Kind: "node", ID: id}
	}
	var out []*brain.Connection
	for key := range s.outgoing[id] {
		out = append(out, s.edges[key].Clone())
	}
	for key := range s.incoming[id] {
		out = append(out, s.edges[key].Clone())
	}
	return out, nil
}

// Edges returns copies of all edges.
func (s *MemStore) Edges(ctx context.Context) ([]*brain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*brain.Connection, 0, len(s.edges))
	for _, c := range s.edges {
		out = append(out, c.Clone())
	}
	return out, nil
}

// Query returns copies of every node matching the predicate.
func (s *MemStore) Query(ctx context.Context, p brain.Predicate) ([]*brain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*brain.Node
	for _, n := range s.nodes {
		if p == nil || p(n) {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

func typeIn(t brain.ConnectionType, types []brain.ConnectionType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

var _ brain.Store = (*MemStore)(nil)
