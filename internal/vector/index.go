// Package vector provides cosine similarity search over embedding matrices.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/haasonsaas/sheetflow/internal/store"
)

// Match is one search hit.
type Match struct {
	Record store.VectorRecord
	Score  float64
}

// Index performs brute-force cosine top-k search over a vector store's
// flattened matrix. Suitable for the store sizes here; no ANN structures.
type Index struct {
	vectors *store.VectorStore
}

// NewIndex creates an index over a vector store.
func NewIndex(vectors *store.VectorStore) *Index {
	return &Index{vectors: vectors}
}

// Search returns the top-k records by cosine similarity to the query vector.
// k larger than the store size returns everything ranked. A zero query or
// empty store returns no matches.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	matrix, records, err := idx.vectors.Matrix(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load vector matrix: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	queryNorm := norm(query)
	if queryNorm == 0 {
		return nil, nil
	}

	dim := len(query)
	matches := make([]Match, 0, len(records))
	offset := 0
	for _, rec := range records {
		if rec.Dimensions != dim {
			offset += rec.Dimensions
			continue
		}
		row := matrix[offset : offset+dim]
		offset += dim

		score := cosine(query, queryNorm, row)
		matches = append(matches, Match{Record: rec, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func cosine(query []float32, queryNorm float64, row []float32) float64 {
	var dot, rowSq float64
	for i, q := range query {
		r := float64(row[i])
		dot += float64(q) * r
		rowSq += r * r
	}
	if rowSq == 0 {
		return 0
	}
	return dot / (queryNorm * math.Sqrt(rowSq))
}

func norm(v []float32) float64 {
	var sq float64
	for _, f := range v {
		sq += float64(f) * float64(f)
	}
	return math.Sqrt(sq)
}
