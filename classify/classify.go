// Package classify assigns a new memory node to a layer and to topic/skill
// hierarchy paths, and scores its initial emotional weight. Classification
// only labels a node; it never creates connections.
package classify

import (
	"strings"

	"go.uber.org/zap"

	"github.com/neurabase/brain-go-sdk/brain"
)

// layerRule pairs a predicate with the layer it selects. Rules are evaluated
// in order; the first match wins, so layer assignment is deterministic.
type layerRule struct {
	name  string
	match func(content string, kind brain.ContentKind, tags []string) bool
	layer brain.MemoryLayer
}

// Classifier labels nodes against a fixed rule table and immutable hierarchy
// trees.
type Classifier struct {
	topics *brain.Hierarchy
	skills *brain.Hierarchy
	rules  []layerRule
	log    *zap.Logger
}

// New creates a classifier. Nil hierarchies fall back to the defaults; a nil
// logger falls back to a no-op.
func New(topics, skills *brain.Hierarchy, log *zap.Logger) *Classifier {
	if topics == nil {
		topics = brain.DefaultTopicHierarchy()
	}
	if skills == nil {
		skills = brain.DefaultSkillHierarchy()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		topics: topics,
		skills: skills,
		rules:  defaultLayerRules(),
		log:    log.Named("classify"),
	}
}

// defaultLayerRules implements the fixed decision order: reusable
// skills/procedures first, dated events second, everything else starts in
// working memory.
func defaultLayerRules() []layerRule {
	return []layerRule{
		{
			name: "procedural",
			match: func(content string, kind brain.ContentKind, tags []string) bool {
				if kind == brain.KindProcedure {
					return true
				}
				return containsAny(content, "procedure", "how to", "step 1", "steps:", "recipe", "workflow")
			},
			layer: brain.LayerProcedural,
		},
		{
			name: "episodic",
			match: func(content string, kind brain.ContentKind, tags []string) bool {
				if kind == brain.KindExperience || kind == brain.KindEvent {
					return true
				}
				return containsAny(content, "happened", "yesterday", "last week", "we did", "we fixed", "remember when")
			},
			layer: brain.LayerEpisodic,
		},
	}
}

// Classify sets the node's layer, hierarchy paths, and initial emotional
// weight. The node is mutated in place before it is stored.
func (c *Classifier) Classify(n *brain.Node) {
	content := strings.ToLower(n.Content)

	n.Layer = brain.LayerShortTerm
	for _, rule := range c.rules {
		if rule.match(content, n.Kind, n.Tags) {
			n.Layer = rule.layer
			c.log.Debug("layer rule matched",
				zap.String("node", n.ID), zap.String("rule", rule.name))
			break
		}
	}

	n.TopicPath = c.topics.Match(n.Content, n.Tags)
	n.SkillPath = c.skills.Match(n.Content, n.Tags)
	n.EmotionalWeight = initialWeight(n)
}

// priorityMarkers and their weight boosts. Urgent, error-laden content is
// worth keeping around.
var priorityMarkers = []struct {
	word  string
	boost float64
}{
	{"critical", 0.4}, {"urgent", 0.4}, {"asap", 0.4},
	{"important", 0.3}, {"must", 0.3}, {"error", 0.3},
	{"bug", 0.3}, {"deadline", 0.3},
	{"need", 0.2}, {"fix", 0.2},
	{"should", 0.1},
}

// initialWeight scores importance from urgency markers, tag count, and
// content length, starting at 0.5 and capped at 1.0.
func initialWeight(n *brain.Node) float64 {
	content := strings.ToLower(n.Content)
	weight := 0.5
	for _, m := range priorityMarkers {
		if strings.Contains(content, m.word) {
			weight += m.boost
		}
	}
	if len(n.Content) > 200 {
		weight += 0.1
	}
	if len(n.Tags) > 3 {
		weight += 0.1
	}
	if weight > 1 {
		weight = 1
	}
	return weight
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
