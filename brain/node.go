package brain

import (
	"time"

	"github.com/google/uuid"
)

// MemoryLayer is the coarse memory category a node belongs to. The layer
// governs retention policy: short_term is the capacity-bounded working tier,
// the other four are durable.
type MemoryLayer string

const (
	LayerShortTerm  MemoryLayer = "short_term"
	LayerLongTerm   MemoryLayer = "long_term"
	LayerEpisodic   MemoryLayer = "episodic"
	LayerProcedural MemoryLayer = "procedural"
	LayerSemantic   MemoryLayer = "semantic"
)

// Valid reports whether l is one of the five defined layers.
func (l MemoryLayer) Valid() bool {
	switch l {
	case LayerShortTerm, LayerLongTerm, LayerEpisodic, LayerProcedural, LayerSemantic:
		return true
	}
	return false
}

// MemoryState is the lifecycle stage of a node. Transitions are monotonic
// (fresh → active → stable → consolidated) except for demotion to dormant,
// and revival dormant → active on access.
type MemoryState string

const (
	StateFresh        MemoryState = "fresh"
	StateActive       MemoryState = "active"
	StateStable       MemoryState = "stable"
	StateConsolidated MemoryState = "consolidated"
	StateDormant      MemoryState = "dormant"
)

// Valid reports whether s is one of the five defined states.
func (s MemoryState) Valid() bool {
	switch s {
	case StateFresh, StateActive, StateStable, StateConsolidated, StateDormant:
		return true
	}
	return false
}

// rank orders the forward states. Dormant sits outside the progression.
func (s MemoryState) rank() int {
	switch s {
	case StateFresh:
		return 0
	case StateActive:
		return 1
	case StateStable:
		return 2
	case StateConsolidated:
		return 3
	}
	return -1
}

// ContentKind is the declared kind of a node's content.
type ContentKind string

const (
	KindFact       ContentKind = "fact"
	KindPreference ContentKind = "preference"
	KindTask       ContentKind = "task"
	KindExperience ContentKind = "experience"
	KindProcedure  ContentKind = "procedure"
	KindEvent      ContentKind = "event"
)

// Node is the atomic unit of stored knowledge. A node carries its content and
// embedding, its classification (layer, state, hierarchy paths), and the usage
// metadata the lifecycle manager promotes and decays on.
//
// Stores treat a Node as a single record: every write replaces the whole
// record atomically, so readers never observe a half-updated node.
type Node struct {
	ID    string
	RawID string // optional back-reference to a pre-existing raw memory record

	Content   string
	Kind      ContentKind
	ProjectID string
	Tags      []string
	Embedding []float32

	Layer     MemoryLayer
	State     MemoryState
	TopicPath []string
	SkillPath []string

	AccessCount        int
	LastAccessed       time.Time
	ReinforcementCount int
	CreatedAt          time.Time

	EmotionalWeight  float64 // importance, [0,1]
	IntegrationDepth float64 // how embedded in the graph, [0,1]
	DecayRate        float64 // how quickly the memory fades, (0,1]

	// PriorityReview marks a node ingested while the short-term tier was over
	// capacity with no demotable candidate. The next sweep handles it first.
	PriorityReview bool
}

// NewNode creates a fresh short-term node with a generated id.
func NewNode(content string, kind ContentKind, tags []string, projectID string, now time.Time) *Node {
	return &Node{
		ID:           uuid.New().String(),
		Content:      content,
		Kind:         kind,
		ProjectID:    projectID,
		Tags:         append([]string(nil), tags...),
		Layer:        LayerShortTerm,
		State:        StateFresh,
		CreatedAt:    now,
		LastAccessed: now,
		DecayRate:    defaultDecayRate,
	}
}

const defaultDecayRate = 0.1

// Touch records a retrieval. Retrieval is a reinforcing event: the access
// count goes up, a fresh node becomes active, and a dormant node is revived.
func (n *Node) Touch(now time.Time) {
	n.AccessCount++
	n.LastAccessed = now
	switch n.State {
	case StateFresh, StateDormant:
		n.State = StateActive
	}
}

// TransitionState applies a state change if it is legal: forward along the
// fresh → active → stable → consolidated progression, any state → dormant, or
// dormant → active. It reports whether the state changed.
func (n *Node) TransitionState(to MemoryState) bool {
	if !to.Valid() || n.State == to {
		return false
	}
	if to == StateDormant {
		n.State = StateDormant
		return true
	}
	if n.State == StateDormant {
		if to == StateActive {
			n.State = StateActive
			return true
		}
		return false
	}
	if to.rank() > n.State.rank() {
		n.State = to
		return true
	}
	return false
}

// AdjustWeight moves the emotional weight by delta, clamped to [0,1].
func (n *Node) AdjustWeight(delta float64) {
	n.EmotionalWeight = clamp01(n.EmotionalWeight + delta)
}

// Clone returns a deep copy. Stores copy nodes in and out so callers can
// never mutate a stored record in place.
func (n *Node) Clone() *Node {
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	c.TopicPath = append([]string(nil), n.TopicPath...)
	c.SkillPath = append([]string(nil), n.SkillPath...)
	c.Embedding = append([]float32(nil), n.Embedding...)
	return &c
}

// HasTag reports whether the node carries the given tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
