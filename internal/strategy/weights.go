package strategy

import "github.com/sablesearch/sable-search/internal/analyzer"

// baseWeights returns the starting fusion weights before strategy and
// query-type adjustments.
func baseWeights(fts, vector float64) FusionWeights {
	return FusionWeights{
		Fts:         fts,
		Vector:      vector,
		ExactMatch:  1.2,
		PhraseMatch: 1.1,
		Proximity:   1.0,
		Freshness:   0.1,
		Popularity:  0.1,
	}
}

// adjustForStrategy shifts weights toward the signals the chosen
// strategy relies on.
func adjustForStrategy(w FusionWeights, s Strategy) FusionWeights {
	switch s {
	case StrategyExactMatch:
		w.ExactMatch *= 1.25
		w.Fts += 0.1
		w.Vector = min(w.Vector, 0.2)
	case StrategyPhrase:
		w.PhraseMatch *= 1.2
		w.Proximity *= 1.1
	case StrategySemantic:
		w.Vector = max(w.Vector, 0.5)
		w.Fts = 1.0 - w.Vector
	case StrategyFuzzy:
		w.ExactMatch *= 0.8
	case StrategyBoolean:
		w.Vector = min(w.Vector, 0.15)
		w.Fts = 1.0 - w.Vector
	}
	return w
}

// adjustForType applies query-shape refinements after the strategy
// adjustment.
func adjustForType(w FusionWeights, qt analyzer.QueryType, qctx string) FusionWeights {
	switch qt {
	case analyzer.TypeQuestion, analyzer.TypeLongPhrase:
		w.Proximity *= 1.1
	case analyzer.TypeNumeric, analyzer.TypeEntity:
		w.ExactMatch *= 1.1
	}
	if qctx == "recent" {
		w.Freshness *= 3
	}
	return w
}
