// Package fusion combines lexical and vector relevance signals into a
// single score, in SQL where possible and in-process otherwise.
package fusion

import (
	"sort"

	"github.com/sablesearch/sable-search/internal/search/result"
)

// DefaultK is the RRF smoothing constant. Higher values reduce the
// impact of rank position differences.
const DefaultK = 60

// Weights are the lexical/vector weights of weighted fusion.
type Weights struct {
	Fts    float64
	Vector float64
}

// FuseRRF merges ranked lexical and vector lists with reciprocal rank
// fusion: score = 1/(k+fts_rank) + 1/(k+vec_rank). A result absent
// from one list receives no contribution from it.
func FuseRRF(ftsResults, vecResults []result.Raw, k int) []result.Raw {
	if k <= 0 {
		k = DefaultK
	}

	type fused struct {
		row   result.Raw
		score float64
	}
	merged := make(map[string]*fused)

	absorb := func(rows []result.Raw) {
		for rank, r := range rows {
			f, ok := merged[r.ID]
			if !ok {
				f = &fused{row: r}
				merged[r.ID] = f
			} else if f.row.Content == "" && r.Content != "" {
				f.row = r
			}
			f.score += 1.0 / float64(k+rank+1)
		}
	}
	absorb(ftsResults)
	absorb(vecResults)

	out := make([]result.Raw, 0, len(merged))
	for _, f := range merged {
		f.row.Score = f.score
		f.row.Source = result.SourceFused
		out = append(out, f.row)
	}
	sortByScore(out)
	return out
}

// FuseWeighted merges scored lexical and vector lists with a weighted
// sum: wFts·(−fts_score) + wVec·(1/(1+vec_score)). Lexical scores are
// BM25-style where lower is better, so they are negated; vector
// scores are distances, so they are inverted.
func FuseWeighted(ftsResults, vecResults []result.Raw, w Weights) []result.Raw {
	type fused struct {
		row   result.Raw
		score float64
	}
	merged := make(map[string]*fused)

	for _, r := range ftsResults {
		merged[r.ID] = &fused{row: r, score: w.Fts * -r.Score}
	}
	for _, r := range vecResults {
		contribution := w.Vector * (1.0 / (1.0 + r.Score))
		if f, ok := merged[r.ID]; ok {
			f.score += contribution
			if f.row.Content == "" && r.Content != "" {
				score := f.score
				f.row = r
				f.score = score
			}
		} else {
			merged[r.ID] = &fused{row: r, score: contribution}
		}
	}

	out := make([]result.Raw, 0, len(merged))
	for _, f := range merged {
		f.row.Score = f.score
		f.row.Source = result.SourceFused
		out = append(out, f.row)
	}
	sortByScore(out)
	return out
}

func sortByScore(rows []result.Raw) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].ID < rows[j].ID
	})
}
