package brain

import (
	"context"
	"math"
)

// Embedder converts text to a fixed-length vector. The provider is external
// and potentially slow; callers bound it with a timeout and degrade to
// text-only strategies when it fails (ErrEmbeddingUnavailable).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Hit is a semantic index match.
type Hit struct {
	ID         string
	Similarity float64
}

// VectorIndex is the similarity-search side of the store: it maps node ids to
// embedding vectors and answers nearest-neighbor queries.
type VectorIndex interface {
	// Add indexes a node's embedding. Re-adding an id replaces its vector.
	Add(ctx context.Context, id, projectID string, embedding []float32) error

	// Search returns up to limit hits sorted by similarity, highest first.
	// An empty projectID searches across all projects.
	Search(ctx context.Context, embedding []float32, limit int, projectID string) ([]Hit, error)
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched or zero-norm inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
