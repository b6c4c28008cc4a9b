package optimizer

import (
	"sort"
	"strings"

	"github.com/sablesearch/sable-search/internal/search/result"
)

// Diversification algorithm names.
const (
	DiversifySemantic   = "semantic"
	DiversifyCluster    = "cluster"
	DiversifyMMD        = "mmd"
	DiversifyRoundRobin = "roundrobin"
	DiversifyNone       = "none"
)

// diversify reorders rows with the selected algorithm. Rows arrive
// sorted by blended score descending.
func diversify(algorithm string, rows []result.Optimized, features []FeatureVector, alpha float64) []result.Optimized {
	if len(rows) < 3 {
		return rows
	}
	switch algorithm {
	case DiversifySemantic:
		return diversifyGreedy(rows, alpha)
	case DiversifyCluster:
		return diversifyCluster(rows)
	case DiversifyMMD:
		return diversifyMMD(rows, features)
	case DiversifyRoundRobin:
		return diversifyRoundRobin(rows)
	default:
		return rows
	}
}

// diversifyGreedy selects results one at a time maximizing
// α·relevance + β·diversity, where diversity is one minus the highest
// term similarity to anything already selected.
func diversifyGreedy(rows []result.Optimized, alpha float64) []result.Optimized {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.7
	}
	beta := 1.0 - alpha

	relevance := normalizedRelevance(rows)
	tokens := make([]map[string]bool, len(rows))
	for i := range rows {
		tokens[i] = resultTokens(&rows[i])
	}

	selected := make([]int, 0, len(rows))
	remaining := make(map[int]bool, len(rows))
	for i := range rows {
		remaining[i] = true
	}

	// The most relevant row opens the list.
	selected = append(selected, 0)
	delete(remaining, 0)

	for len(remaining) > 0 {
		best, bestScore := -1, -1.0
		for idx := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				if sim := jaccard(tokens[idx], tokens[sel]); sim > maxSim {
					maxSim = sim
				}
			}
			score := alpha*relevance[idx] + beta*(1.0-maxSim)
			if score > bestScore || (score == bestScore && idx < best) {
				best, bestScore = idx, score
			}
		}
		selected = append(selected, best)
		delete(remaining, best)
	}

	return reorder(rows, selected)
}

// diversifyCluster groups rows by content signature, keeps each
// cluster's best first, then appends the rest in score order.
func diversifyCluster(rows []result.Optimized) []result.Optimized {
	seen := make(map[string]bool)
	var heads, tail []int

	for i := range rows {
		sig := contentSignature(&rows[i])
		rows[i].DiversityGroup = sig
		if seen[sig] {
			tail = append(tail, i)
		} else {
			seen[sig] = true
			heads = append(heads, i)
		}
	}

	return reorder(rows, append(heads, tail...))
}

// diversifyMMD greedily picks the row whose feature vector lies
// furthest from the already-selected set's mean distance, trading off
// against relevance.
func diversifyMMD(rows []result.Optimized, features []FeatureVector) []result.Optimized {
	if len(features) != len(rows) {
		return rows
	}

	relevance := normalizedRelevance(rows)
	selected := []int{0}
	remaining := make(map[int]bool, len(rows))
	for i := 1; i < len(rows); i++ {
		remaining[i] = true
	}

	for len(remaining) > 0 {
		best, bestScore := -1, -1.0
		for idx := range remaining {
			var total float64
			for _, sel := range selected {
				total += featureDistance(features[idx], features[sel])
			}
			meanDist := total / float64(len(selected))
			score := 0.5*relevance[idx] + 0.5*meanDist
			if score > bestScore || (score == bestScore && idx < best) {
				best, bestScore = idx, score
			}
		}
		selected = append(selected, best)
		delete(remaining, best)
	}

	return reorder(rows, selected)
}

// diversifyRoundRobin interleaves rows across content-signature
// groups, preserving score order inside each group.
func diversifyRoundRobin(rows []result.Optimized) []result.Optimized {
	groups := make(map[string][]int)
	var order []string
	for i := range rows {
		sig := contentSignature(&rows[i])
		rows[i].DiversityGroup = sig
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], i)
	}

	selected := make([]int, 0, len(rows))
	for len(selected) < len(rows) {
		for _, sig := range order {
			if len(groups[sig]) == 0 {
				continue
			}
			selected = append(selected, groups[sig][0])
			groups[sig] = groups[sig][1:]
		}
	}

	return reorder(rows, selected)
}

// contentSignature buckets results by their leading significant title
// tokens; untitled rows fall back to leading content.
func contentSignature(r *result.Optimized) string {
	text := r.Title
	if strings.TrimSpace(text) == "" {
		text = r.Content
	}
	var sig []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `"'.,!?;:()`)
		if len(w) > 2 {
			sig = append(sig, w)
		}
		if len(sig) == 2 {
			break
		}
	}
	if len(sig) == 0 {
		return "misc"
	}
	return strings.Join(sig, " ")
}

func normalizedRelevance(rows []result.Optimized) []float64 {
	lo, hi := rows[0].FinalScore, rows[0].FinalScore
	for i := range rows {
		if rows[i].FinalScore < lo {
			lo = rows[i].FinalScore
		}
		if rows[i].FinalScore > hi {
			hi = rows[i].FinalScore
		}
	}
	out := make([]float64, len(rows))
	span := hi - lo
	for i := range rows {
		if span == 0 {
			out[i] = 1
		} else {
			out[i] = (rows[i].FinalScore - lo) / span
		}
	}
	return out
}

func resultTokens(r *result.Optimized) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(r.Title + " " + r.Content)) {
		w = strings.Trim(w, `"'.,!?;:()`)
		if len(w) > 1 {
			set[w] = true
		}
	}
	return set
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

func reorder(rows []result.Optimized, indices []int) []result.Optimized {
	out := make([]result.Optimized, len(indices))
	for i, idx := range indices {
		out[i] = rows[idx]
	}
	return out
}

// sortByScore orders rows by their current final score.
func sortByScore(rows []result.Optimized) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].FinalScore != rows[j].FinalScore {
			return rows[i].FinalScore > rows[j].FinalScore
		}
		return rows[i].ID < rows[j].ID
	})
}
