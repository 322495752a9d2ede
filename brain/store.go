package brain

import (
	"context"
	"time"
)

// Predicate filters nodes in Query. It must not mutate the node.
type Predicate func(*Node) bool

// Store is durable keyed storage for memory nodes and connection edges.
//
// Contract:
//   - Every mutation is atomic per entity: a node or edge write is
//     all-or-nothing, so concurrent readers never observe a half-updated
//     record. A node write and its subsequent edge writes are separate steps.
//   - Get and Query return copies; mutating a returned node does not change
//     the stored record until it is Put back.
//   - UpsertEdge rejects self-loops and edges whose endpoints do not exist
//     (InvalidReferenceError) instead of creating dangling edges. At most one
//     edge exists per (source, target, type).
//   - Deleting a node removes all edges incident to it.
type Store interface {
	// Put writes a node record, inserting or replacing it whole.
	Put(ctx context.Context, n *Node) error

	// Get returns the node with the given id, or NotFoundError.
	Get(ctx context.Context, id string) (*Node, error)

	// Delete removes a node and every edge incident to it.
	Delete(ctx context.Context, id string) error

	// UpsertEdge writes an edge record, inserting or replacing the edge with
	// the same (source, target, type) key.
	UpsertEdge(ctx context.Context, c *Connection) error

	// Edge returns the edge with the given key, or NotFoundError.
	Edge(ctx context.Context, key EdgeKey) (*Connection, error)

	// DeleteEdge removes an edge. Deleting a missing edge is not an error.
	DeleteEdge(ctx context.Context, key EdgeKey) error

	// Neighbors returns the edges leaving the given node, optionally
	// restricted to the listed types.
	Neighbors(ctx context.Context, id string, types ...ConnectionType) ([]*Connection, error)

	// Incident returns every edge touching the node in either direction.
	Incident(ctx context.Context, id string) ([]*Connection, error)

	// Edges returns all edges. Used by lifecycle sweeps.
	Edges(ctx context.Context) ([]*Connection, error)

	// Query returns every node matching the predicate. A nil predicate
	// matches all nodes.
	Query(ctx context.Context, p Predicate) ([]*Node, error)

	// Close releases resources.
	Close() error
}

// Clock supplies the current time. Decay and promotion timing go through a
// Clock so sweeps are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
