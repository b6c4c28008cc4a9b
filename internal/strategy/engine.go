package strategy

import (
	"time"

	"github.com/sablesearch/sable-search/internal/analyzer"
	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// maxFallbacks caps the fallback list length.
const maxFallbacks = 3

// defaultPlanTimeout bounds execution when the caller sets none.
const defaultPlanTimeout = 30 * time.Second

// largeCorpusThreshold switches normalization to z-score, which is
// more stable on wide score distributions.
const largeCorpusThreshold = 100_000

// Engine turns analyses into execution plans.
type Engine struct {
	cfg     config.SearchConfig
	history *outcomeHistory
	log     *logger.Logger
}

// NewEngine creates a strategy engine.
func NewEngine(cfg config.SearchConfig, log *logger.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		history: newOutcomeHistory(),
		log:     log,
	}
}

// RecordOutcome feeds a strategy outcome into the personalization
// history.
func (e *Engine) RecordOutcome(o Outcome) {
	e.history.record(o)
}

// Select builds the execution plan for an analyzed query.
func (e *Engine) Select(a *analyzer.Analysis, qctx *analyzer.Context, opts Options) (*ExecutionPlan, error) {
	if a == nil {
		return nil, errors.New(errors.KindValidation, "strategy selection requires an analysis")
	}

	primary, err := e.tableSelect(a, opts)
	if err != nil {
		return nil, err
	}
	primary = applyIntentOverrides(primary, a.Intent, qctx, opts)

	personalized := false
	if opts.UserID != "" {
		if pref, ok := e.history.preferred(opts.UserID, a.Intent); ok && viable(pref, opts) {
			primary = pref
			personalized = true
		}
	}

	weights := baseWeights(e.cfg.FtsWeight, e.cfg.VectorWeight)
	weights = adjustForStrategy(weights, primary)
	temporality := ""
	if qctx != nil {
		temporality = qctx.Temporality
	}
	weights = adjustForType(weights, a.Type, temporality)

	fusion := FusionWeighted
	if primary == StrategySemantic && opts.EmbeddingsReady {
		fusion = FusionRRF
	}
	if opts.Weights != nil {
		weights = *opts.Weights
		fusion = FusionWeighted
	}

	norm := NormMinMax
	if opts.CorpusSize > largeCorpusThreshold {
		norm = NormZScore
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultTopK
	}

	plan := &ExecutionPlan{
		Primary:       primary,
		Fallbacks:     fallbacksFor(primary, opts),
		Fusion:        fusion,
		Weights:       weights,
		Normalization: norm,
		Filters:       opts.Filters,
		Limit:         limit,
		Offset:        max(opts.Offset, 0),
		MaxCandidates: e.cfg.MaxResults,
		Timeout:       defaultPlanTimeout,
		Complexity:    estimatePlanComplexity(a, opts),
		Personalized:  personalized,
	}

	e.log.Debug("selected strategy",
		"primary", plan.Primary,
		"fusion", plan.Fusion,
		"complexity", plan.Complexity,
		"personalized", plan.Personalized,
	)

	return plan, nil
}

// tableSelect applies the query-type to strategy table.
func (e *Engine) tableSelect(a *analyzer.Analysis, opts Options) (Strategy, error) {
	switch a.Type {
	case analyzer.TypeExactPhrase:
		return StrategyExactMatch, nil
	case analyzer.TypeBoolean:
		return StrategyBoolean, nil
	case analyzer.TypeWildcard:
		return StrategyFuzzy, nil
	case analyzer.TypeQuestion:
		if opts.EmbeddingsReady {
			return StrategySemantic, nil
		}
		return StrategyKeyword, nil
	case analyzer.TypeNumeric, analyzer.TypeEntity:
		return StrategyExactMatch, nil
	case analyzer.TypeShortKeyword:
		if a.Features.WordCount == 1 {
			return StrategyExactMatch, nil
		}
		return StrategyKeyword, nil
	case analyzer.TypeLongPhrase:
		if opts.EmbeddingsReady {
			return StrategySemantic, nil
		}
		return StrategyPhrase, nil
	default:
		fb := Strategy(e.cfg.FallbackStrategy)
		if !knownStrategy(fb) {
			return "", errors.New(errors.KindConfiguration, "configured fallback strategy is not viable").
				WithContext("fallback", e.cfg.FallbackStrategy)
		}
		return fb, nil
	}
}

// applyIntentOverrides refines the table choice from intent and
// contextual signals.
func applyIntentOverrides(s Strategy, intent analyzer.Intent, qctx *analyzer.Context, opts Options) Strategy {
	switch intent {
	case analyzer.IntentCompare, analyzer.IntentDiscover:
		if opts.EmbeddingsReady {
			s = StrategySemantic
		}
	}
	if qctx != nil {
		if qctx.Specificity == "precise" {
			s = StrategyExactMatch
		}
		if qctx.Urgency == "high" && s == StrategySemantic {
			// Vector search is the slow path; urgent callers take
			// the lexical one.
			s = StrategyKeyword
		}
	}
	return s
}

// fallbacksFor builds the capped ordered fallback list. Keyword search
// is the universal fallback and always present.
func fallbacksFor(primary Strategy, opts Options) []Strategy {
	ordered := []Strategy{StrategyKeyword, StrategyPhrase, StrategyFuzzy, StrategySemantic}

	out := make([]Strategy, 0, maxFallbacks)
	for _, s := range ordered {
		if s == primary || !viable(s, opts) {
			continue
		}
		out = append(out, s)
		if len(out) == maxFallbacks {
			break
		}
	}
	return out
}

// viable reports whether a strategy can execute under the options.
func viable(s Strategy, opts Options) bool {
	if s == StrategySemantic {
		return opts.EmbeddingsReady
	}
	return knownStrategy(s)
}

func knownStrategy(s Strategy) bool {
	switch s {
	case StrategyExactMatch, StrategyKeyword, StrategyPhrase,
		StrategyFuzzy, StrategyBoolean, StrategySemantic:
		return true
	}
	return false
}

// estimatePlanComplexity grades plan cost additively.
func estimatePlanComplexity(a *analyzer.Analysis, opts Options) string {
	score := 0
	if a.Features.WordCount > 3 {
		score++
	}
	if a.Features.WordCount > 8 {
		score++
	}
	if a.Features.HasBooleanOperators || a.Features.HasWildcards {
		score++
	}
	if opts.CorpusSize > 10_000 {
		score++
	}
	if opts.CorpusSize > largeCorpusThreshold {
		score++
	}
	switch a.Intent {
	case analyzer.IntentCompare, analyzer.IntentDiscover:
		score++
	}

	switch {
	case score >= 3:
		return "high"
	case score >= 1:
		return "medium"
	default:
		return "low"
	}
}
