package processor

import (
	"math"

	"github.com/sablesearch/sable-search/internal/search/result"
)

// Normalization selects the score normalization mode.
type Normalization string

const (
	NormMinMax Normalization = "minmax"
	NormZScore Normalization = "zscore"
	NormNone   Normalization = "none"
)

// normalizeScores fills NormalizedScore from Score. Min-max maps onto
// [0,1] and is idempotent: an already-normalized set has min 0 and
// max 1, so a second pass is the identity.
func normalizeScores(rows []result.Ranked, mode Normalization) {
	if len(rows) == 0 {
		return
	}

	switch mode {
	case NormZScore:
		var mean float64
		for i := range rows {
			mean += rows[i].Score
		}
		mean /= float64(len(rows))

		var variance float64
		for i := range rows {
			d := rows[i].Score - mean
			variance += d * d
		}
		stddev := math.Sqrt(variance / float64(len(rows)))
		for i := range rows {
			if stddev == 0 {
				rows[i].NormalizedScore = 0
			} else {
				rows[i].NormalizedScore = (rows[i].Score - mean) / stddev
			}
		}

	case NormNone:
		for i := range rows {
			rows[i].NormalizedScore = rows[i].Score
		}

	default: // min-max
		lo, hi := rows[0].Score, rows[0].Score
		for i := range rows {
			lo = math.Min(lo, rows[i].Score)
			hi = math.Max(hi, rows[i].Score)
		}
		span := hi - lo
		for i := range rows {
			if span == 0 {
				rows[i].NormalizedScore = 1
			} else {
				rows[i].NormalizedScore = (rows[i].Score - lo) / span
			}
		}
	}
}
