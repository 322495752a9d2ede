package brain

import (
	"regexp"
	"strings"
)

// Pattern is a coarse structural shape detected in content. Shapes drive
// analogical matching: two memories with the same problem/solution shape are
// related even when their topics differ.
type Pattern string

const (
	PatternCode     Pattern = "code"
	PatternList     Pattern = "list"
	PatternQuestion Pattern = "question"
	PatternCommand  Pattern = "command"
	PatternError    Pattern = "error"
	PatternSolution Pattern = "solution"
)

var (
	listRe    = regexp.MustCompile(`(?m)^\s*(\d+\.|[-*])\s`)
	commandRe = regexp.MustCompile(`(?m)^\s*[a-zA-Z_][a-zA-Z0-9_]*\s*\(`)
)

var questionStarts = []string{"what", "how", "why", "when", "where", "which", "who"}

// Patterns extracts the structural shapes present in text.
func Patterns(text string) []Pattern {
	var out []Pattern
	lower := strings.ToLower(text)
	trimmed := strings.TrimSpace(lower)

	if strings.Contains(text, "func ") || strings.Contains(text, "def ") ||
		strings.Contains(text, "class ") || strings.Contains(text, "import ") {
		out = append(out, PatternCode)
	}
	if listRe.MatchString(text) {
		out = append(out, PatternList)
	}
	if strings.Contains(text, "?") || hasPrefixAny(trimmed, questionStarts) {
		out = append(out, PatternQuestion)
	}
	if commandRe.MatchString(text) {
		out = append(out, PatternCommand)
	}
	if containsAny(lower, "error", "exception", "failed", "crash", "panic") {
		out = append(out, PatternError)
	}
	if containsAny(lower, "fix", "solution", "solved", "resolve", "workaround") {
		out = append(out, PatternSolution)
	}
	return out
}

// PatternOverlap is the Jaccard similarity of two shape sets.
func PatternOverlap(a, b []Pattern) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[Pattern]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	inter := 0
	union := len(a)
	seen := make(map[Pattern]bool, len(b))
	for _, p := range b {
		if seen[p] {
			continue
		}
		seen[p] = true
		if set[p] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
