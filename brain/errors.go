package brain

import (
	"errors"
	"fmt"
)

// ErrEmbeddingUnavailable signals that the embedding provider timed out or
// failed. Callers degrade to text-only strategies instead of surfacing it.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// NotFoundError is returned when an unknown node or edge id is referenced.
type NotFoundError struct {
	Kind string // "node" or "edge"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidReferenceError is returned when an edge write references a node that
// does not exist, or a self-loop. Dangling edges are never created silently.
type InvalidReferenceError struct {
	NodeID string
	Reason string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid edge reference to %q: %s", e.NodeID, e.Reason)
}

// CapacityError reports that the short-term tier is over its limit and no
// candidate could be promoted or demoted. Ingestion still succeeds; the node
// is flagged for priority lifecycle review.
type CapacityError struct {
	Layer MemoryLayer
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("layer %s over capacity (limit %d), no demotable candidate", e.Layer, e.Limit)
}
