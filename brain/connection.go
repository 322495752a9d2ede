package brain

import "time"

// ConnectionType classifies the relationship an edge represents.
type ConnectionType string

const (
	ConnSemantic   ConnectionType = "semantic"   // embedding similarity
	ConnTemporal   ConnectionType = "temporal"   // created close together in time
	ConnCausal     ConnectionType = "causal"     // cause-effect phrasing
	ConnContextual ConnectionType = "contextual" // same project/context
	ConnFunctional ConnectionType = "functional" // shared tool or technique
	ConnAnalogical ConnectionType = "analogical" // similar problem/solution shape
)

// ConnectionTypes lists every defined type, in a stable order.
var ConnectionTypes = []ConnectionType{
	ConnSemantic, ConnTemporal, ConnCausal,
	ConnContextual, ConnFunctional, ConnAnalogical,
}

// Valid reports whether t is one of the six defined types.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnSemantic, ConnTemporal, ConnCausal, ConnContextual, ConnFunctional, ConnAnalogical:
		return true
	}
	return false
}

// EdgeKey identifies an edge: at most one edge of a given type may exist from
// source to target.
type EdgeKey struct {
	SourceID string
	TargetID string
	Type     ConnectionType
}

// Connection is a directed, typed, strength-weighted edge between two nodes.
// Repeated discovery of the same relationship reinforces the existing edge
// rather than creating a new one.
type Connection struct {
	SourceID           string
	TargetID           string
	Type               ConnectionType
	Strength           float64 // [0,1]
	ReinforcementCount int
	CreatedAt          time.Time
	LastReinforced     time.Time
}

// NewConnection creates an edge with clamped initial strength.
func NewConnection(sourceID, targetID string, typ ConnectionType, strength float64, now time.Time) *Connection {
	return &Connection{
		SourceID:       sourceID,
		TargetID:       targetID,
		Type:           typ,
		Strength:       clamp01(strength),
		CreatedAt:      now,
		LastReinforced: now,
	}
}

// Key returns the identity of this edge.
func (c *Connection) Key() EdgeKey {
	return EdgeKey{SourceID: c.SourceID, TargetID: c.TargetID, Type: c.Type}
}

// Reinforce moves strength toward 1.0 by a learning-rate step:
//
//	strength += rate * (1 - strength)
//
// Strength never decreases here and never exceeds 1.0, so repeated
// co-occurrence strictly strengthens a relationship.
func (c *Connection) Reinforce(rate float64, now time.Time) {
	c.Strength = clamp01(c.Strength + rate*(1-c.Strength))
	c.ReinforcementCount++
	c.LastReinforced = now
}

// Clone returns a copy of the edge record.
func (c *Connection) Clone() *Connection {
	cp := *c
	return &cp
}
