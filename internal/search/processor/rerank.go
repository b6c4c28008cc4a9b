package processor

import (
	"sort"
	"strings"

	"github.com/sablesearch/sable-search/internal/search/result"
)

// Base re-rank weights. The four components must sum to 1.
const (
	weightNormalized = 0.6
	weightDiversity  = 0.15
	weightContext    = 0.15
	weightQuality    = 0.1
)

// rerank computes the composite final score for every row: the
// normalized relevance blended with diversity against already-accepted
// rows, session-context overlap and a content-quality heuristic.
func rerank(rows []result.Ranked, contextTerms []string) {
	// Higher-relevance rows are accepted first so diversity penalizes
	// redundancy among the top.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].NormalizedScore > rows[j].NormalizedScore
	})

	var accepted []map[string]bool
	ctxSet := termSet(strings.Join(contextTerms, " "))

	for i := range rows {
		tokens := termSet(rows[i].Title + " " + rows[i].Content)

		rows[i].DiversityScore = diversityAgainst(tokens, accepted)
		rows[i].ContextScore = overlapScore(tokens, ctxSet)
		rows[i].QualityScore = qualityScore(&rows[i].Raw)
		rows[i].FinalScore = weightNormalized*rows[i].NormalizedScore +
			weightDiversity*rows[i].DiversityScore +
			weightContext*rows[i].ContextScore +
			weightQuality*rows[i].QualityScore

		rows[i].Explanation = []result.ScoreComponent{
			component("relevance", weightNormalized, rows[i].NormalizedScore),
			component("diversity", weightDiversity, rows[i].DiversityScore),
			component("context", weightContext, rows[i].ContextScore),
			component("quality", weightQuality, rows[i].QualityScore),
		}

		accepted = append(accepted, tokens)
	}
}

func component(name string, weight, value float64) result.ScoreComponent {
	return result.ScoreComponent{
		Name:     name,
		Weight:   weight,
		Value:    value,
		Weighted: weight * value,
	}
}

// diversityAgainst is 1 minus the mean Jaccard similarity to the
// already-accepted rows. The first row is maximally diverse.
func diversityAgainst(tokens map[string]bool, accepted []map[string]bool) float64 {
	if len(accepted) == 0 {
		return 1.0
	}
	var total float64
	for _, prev := range accepted {
		total += jaccard(tokens, prev)
	}
	return 1.0 - total/float64(len(accepted))
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// overlapScore is the share of context terms present in the row.
func overlapScore(tokens, ctx map[string]bool) float64 {
	if len(ctx) == 0 {
		return 0
	}
	matched := 0
	for t := range ctx {
		if tokens[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(ctx))
}

// qualityScore grades a row on structural completeness.
func qualityScore(r *result.Raw) float64 {
	score := 0.0
	if strings.TrimSpace(r.Title) != "" {
		score += 0.4
	}
	switch n := len(r.Content); {
	case n >= 200:
		score += 0.4
	case n >= 50:
		score += 0.25
	case n > 0:
		score += 0.1
	}
	if len(r.Metadata) > 0 {
		score += 0.2
	}
	return score
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		if t := normalizeWord(w); len(t) > 1 {
			set[t] = true
		}
	}
	return set
}
