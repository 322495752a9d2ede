// Package mock provides a deterministic embedder for tests and offline use.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder hashes each token of the input into a fixed-size bag-of-words
// vector and normalizes it. Texts sharing tokens get a positive cosine
// similarity proportional to their overlap, so the similarity paths of the
// engine are exercisable without a real model.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with all-MiniLM-L6-v2's dimensionality.
func New() *Embedder {
	return &Embedder{dimensions: 384}
}

// Embed produces a normalized bag-of-words vector.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		vec[h.Sum64()%uint64(m.dimensions)] += 1
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	toks := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if len(f) >= 2 {
			toks = append(toks, f)
		}
	}
	return toks
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
