package analyzer

import (
	"context"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// Service analyzes queries into immutable Analysis values.
type Service struct {
	cfg   config.AnalyzerConfig
	cache *analysisCache
	log   *logger.Logger
}

// NewService creates a query analyzer.
func NewService(cfg config.AnalyzerConfig, log *logger.Logger) *Service {
	return &Service{
		cfg:   cfg,
		cache: newAnalysisCache(cfg.CacheSize),
		log:   log,
	}
}

// Analyze normalizes, classifies and enriches a query. The mandatory
// stages (normalize, features, classify, confidence) fail the call;
// the optional stages (intent, expansion, entities) degrade silently.
func (s *Service) Analyze(ctx context.Context, query string, qctx *Context) (*Analysis, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, errors.New(errors.KindValidation, "query is empty after normalization").
			WithContext("query", query)
	}

	key := cacheKeyFor(normalized, qctx.Fingerprint())
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.KindTimeout, "analysis cancelled", err)
	}

	features := ExtractFeatures(normalized)
	qt := Classify(normalized, features)

	a := &Analysis{
		Original:   query,
		Normalized: normalized,
		Type:       qt,
		Features:   features,
		Confidence: Confidence(qt, features),
		Complexity: EstimateComplexity(features),
	}
	a.SuggestedStrategy, a.AlternativeStrategies = strategyHints(qt)

	if s.cfg.EnableIntent {
		a.Intent = DetectIntent(normalized, qctx)
	}
	if s.cfg.EnableExpansion {
		var history []string
		if qctx != nil {
			history = qctx.RecentQueries
		}
		a.Expansions = Expand(normalized, history)
	}
	if s.cfg.EnableEntities {
		a.Entities = ExtractEntities(normalized)
		a.Keywords = ExtractKeywords(normalized)
	}

	s.cache.set(key, a)

	s.log.Debug("analyzed query",
		"type", a.Type,
		"confidence", a.Confidence,
		"intent", a.Intent,
		"complexity", a.Complexity,
	)

	return a, nil
}

// strategyHints maps a query type to capability-agnostic strategy
// suggestions. The strategy engine refines these against the actual
// collection capabilities.
func strategyHints(qt QueryType) (string, []string) {
	switch qt {
	case TypeExactPhrase:
		return "exact_match", []string{"phrase", "keyword"}
	case TypeBoolean:
		return "boolean", []string{"keyword"}
	case TypeWildcard:
		return "fuzzy", []string{"keyword"}
	case TypeQuestion:
		return "semantic", []string{"keyword"}
	case TypeNumeric, TypeEntity:
		return "exact_match", []string{"keyword"}
	case TypeShortKeyword:
		return "keyword", []string{"exact_match"}
	case TypeLongPhrase:
		return "semantic", []string{"phrase", "keyword"}
	default:
		return "keyword", []string{"fuzzy"}
	}
}

// CacheSize reports how many analyses are cached, for diagnostics.
func (s *Service) CacheSize() int {
	return s.cache.size()
}
