package brain

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Hierarchy is an immutable tree of classification labels, e.g.
// Programming → Frontend → React → Hooks. Hierarchies are loaded once per
// engine instance and passed explicitly to the classifier; they are never
// mutated after construction.
type Hierarchy struct {
	Label    string       `yaml:"label"`
	Children []*Hierarchy `yaml:"children,omitempty"`
}

// LoadHierarchy reads a hierarchy tree from YAML. The document is a list of
// root categories.
func LoadHierarchy(r io.Reader) (*Hierarchy, error) {
	var roots []*Hierarchy
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&roots); err != nil {
		return nil, fmt.Errorf("parse hierarchy: %w", err)
	}
	return &Hierarchy{Children: roots}, nil
}

// Match walks the tree and returns the longest chain of labels whose lowercase
// form appears in the content or tags. Ties at the same starting level are
// broken by preferring the deeper (more specific) path; among equally deep
// paths the first in tree order wins, so matching is deterministic.
func (h *Hierarchy) Match(content string, tags []string) []string {
	if h == nil {
		return nil
	}
	content = strings.ToLower(content)
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}
	return deepestChain(h.Children, content, lowered)
}

func deepestChain(level []*Hierarchy, content string, tags []string) []string {
	var best []string
	for _, node := range level {
		if !labelMatches(node.Label, content, tags) {
			continue
		}
		chain := append([]string{node.Label}, deepestChain(node.Children, content, tags)...)
		if len(chain) > len(best) {
			best = chain
		}
	}
	return best
}

func labelMatches(label, content string, tags []string) bool {
	l := strings.ToLower(label)
	if strings.Contains(content, l) {
		return true
	}
	for _, t := range tags {
		if strings.Contains(t, l) || strings.Contains(l, t) {
			return true
		}
	}
	return false
}

// DefaultTopicHierarchy is the stock topic tree.
func DefaultTopicHierarchy() *Hierarchy {
	return &Hierarchy{Children: []*Hierarchy{
		{Label: "Programming", Children: []*Hierarchy{
			{Label: "Frontend", Children: []*Hierarchy{
				{Label: "React", Children: []*Hierarchy{
					{Label: "Hooks"},
					{Label: "Components"},
				}},
				{Label: "Vue"},
				{Label: "Angular"},
				{Label: "CSS"},
				{Label: "TypeScript"},
				{Label: "JavaScript"},
			}},
			{Label: "Backend", Children: []*Hierarchy{
				{Label: "Python"},
				{Label: "Node.js"},
				{Label: "Go"},
				{Label: "Rust"},
				{Label: "APIs"},
				{Label: "Databases"},
			}},
			{Label: "DevOps", Children: []*Hierarchy{
				{Label: "Docker"},
				{Label: "Kubernetes"},
				{Label: "CI/CD"},
				{Label: "Monitoring"},
				{Label: "Cloud"},
			}},
		}},
		{Label: "Problem Solving", Children: []*Hierarchy{
			{Label: "Debugging"},
			{Label: "Optimization"},
			{Label: "Architecture"},
			{Label: "Design Patterns"},
			{Label: "Algorithms"},
		}},
		{Label: "Project Management", Children: []*Hierarchy{
			{Label: "Planning"},
			{Label: "Documentation"},
			{Label: "Testing"},
			{Label: "Deployment"},
		}},
	}}
}

// DefaultSkillHierarchy is the stock skill tree.
func DefaultSkillHierarchy() *Hierarchy {
	return &Hierarchy{Children: []*Hierarchy{
		{Label: "Development", Children: []*Hierarchy{
			{Label: "Coding"},
			{Label: "Debugging"},
			{Label: "Testing"},
			{Label: "Refactoring"},
			{Label: "Code Review"},
		}},
		{Label: "Design", Children: []*Hierarchy{
			{Label: "Architecture"},
			{Label: "UI/UX"},
			{Label: "System Design"},
			{Label: "Database Design"},
		}},
		{Label: "Analysis", Children: []*Hierarchy{
			{Label: "Problem Analysis"},
			{Label: "Performance Analysis"},
			{Label: "Code Analysis"},
		}},
		{Label: "Communication", Children: []*Hierarchy{
			{Label: "Documentation"},
			{Label: "Explanation"},
			{Label: "Teaching"},
		}},
	}}
}
