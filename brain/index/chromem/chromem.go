// Package chromem provides a semantic index over chromem-go, a pure Go
// embedded vector database.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/neurabase/brain-go-sdk/brain"
)

// Index maps node ids to embedding vectors, one collection per project so
// scoped searches stay cheap.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (ix *Index) getOrCreate(projectID string) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, ok := ix.collections[projectID]
	ix.mu.RUnlock()
	if ok {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, ok := ix.collections[projectID]; ok {
		return col, nil
	}

	name := "project_" + projectID
	if projectID == "" {
		name = "global"
	}
	col, err := ix.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[projectID] = col
	return col, nil
}

// Add indexes a node's embedding. Re-adding an id replaces its vector.
func (ix *Index) Add(ctx context.Context, id, projectID string, embedding []float32) error {
	col, err := ix.getOrCreate(projectID)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        id,
		Content:   id, // chromem requires content; the store owns the real text
		Embedding: embedding,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Search returns up to limit hits sorted by similarity. An empty projectID
// searches every collection and merges the results.
func (ix *Index) Search(ctx context.Context, embedding []float32, limit int, projectID string) ([]brain.Hit, error) {
	ix.mu.RLock()
	var cols []*chromem.Collection
	if projectID == "" {
		for _, col := range ix.collections {
			cols = append(cols, col)
		}
	} else if col, ok := ix.collections[projectID]; ok {
		cols = append(cols, col)
	}
	ix.mu.RUnlock()

	var hits []brain.Hit
	for _, col := range cols {
		results, err := queryCollection(ctx, col, embedding, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			hits = append(hits, brain.Hit{ID: r.ID, Similarity: float64(r.Similarity)})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// queryCollection queries with shrinking limits: chromem rejects nResults
// larger than the collection size.
func queryCollection(ctx context.Context, col *chromem.Collection, embedding []float32, limit int) ([]chromem.Result, error) {
	for n := limit; n >= 1; n-- {
		results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			return results, nil
		}
		if isTooFewDocs(err) {
			continue
		}
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	return nil, nil // empty collection
}

func isTooFewDocs(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

var _ brain.VectorIndex = (*Index)(nil)
