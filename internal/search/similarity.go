package search

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	// MinLimit and MaxLimit bound every caller-supplied result count.
	MinLimit = 1
	MaxLimit = 50
)

// Neighbor is a ranked item with its cosine similarity to the query.
type Neighbor struct {
	Item  Item    `json:"item"`
	Index int     `json:"-"`
	Score float64 `json:"similarity_score"`
}

// ClampLimit forces n into [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// It returns 0 for nil or mismatched vectors and for zero norms.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := floats.Dot(a, b) / (normA * normB)
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

// RankNeighbors scores every row of m against the query row and returns the
// topN best, excluding the query itself. Rows that are missing or shorter
// than the vocabulary are skipped. Ties keep corpus order.
func RankNeighbors(m *Matrix, items []Item, query, topN int) []Neighbor {
	results := make([]Neighbor, 0)
	if m == nil || topN < 1 {
		return results
	}
	queryVector := m.Row(query)

	for i := range items {
		if i == query {
			continue
		}
		row := m.Row(i)
		if row == nil {
			continue
		}
		results = append(results, Neighbor{
			Item:  items[i],
			Index: i,
			Score: CosineSimilarity(queryVector, row),
		})
	}

	// Sort by descending score
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topN {
		results = results[:topN]
	}
	for i := range results {
		results[i].Score = round4(results[i].Score)
	}
	return results
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
