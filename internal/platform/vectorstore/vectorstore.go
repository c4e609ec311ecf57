// Package vectorstore holds the knowledge-base vector index. A local SQLite
// file is the default; a Pinecone index can be used instead.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// query or index dimensionality.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Vector is one embedded chunk.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is a query hit. Score is cosine similarity.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Index stores vectors and answers nearest-neighbour queries.
type Index interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero magnitude.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// SortMatches orders by score descending, then id ascending, and truncates
// to topK.
func SortMatches(matches []Match, topK int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// Text returns the chunk text stored in a match's metadata.
func (m Match) Text() string {
	s, _ := m.Metadata["text"].(string)
	return s
}

// Source returns the originating document name, if recorded.
func (m Match) Source() string {
	s, _ := m.Metadata["source"].(string)
	return s
}
