package fusion

import (
	"math"
	"sort"
)

// VectorDoc pairs a document id with its stored embedding.
type VectorDoc struct {
	DocID     string
	Embedding []float32
}

// RankVectors scores stored vectors against the query embedding by
// cosine distance and returns the topK closest as ranked candidates.
func RankVectors(query []float32, docs []VectorDoc, topK int) []VectorCandidate {
	candidates := make([]VectorCandidate, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != len(query) {
			continue
		}
		candidates = append(candidates, VectorCandidate{
			DocID:    d.DocID,
			Distance: 1.0 - cosineSimilarity(query, d.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].DocID < candidates[j].DocID
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}

// cosineSimilarity computes the cosine of the angle between two
// vectors, 0 for zero vectors.
func cosineSimilarity(a, b []float32) float64 {
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
