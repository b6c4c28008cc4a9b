// Package search orchestrates the full retrieval pipeline: analysis,
// strategy selection, embedding, fused retrieval, processing and
// optimization.
package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sablesearch/sable-search/internal/analyzer"
	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/provider"
	"github.com/sablesearch/sable-search/internal/search/fusion"
	"github.com/sablesearch/sable-search/internal/search/optimizer"
	"github.com/sablesearch/sable-search/internal/search/processor"
	"github.com/sablesearch/sable-search/internal/search/result"
	"github.com/sablesearch/sable-search/internal/storage"
	"github.com/sablesearch/sable-search/internal/strategy"
)

// Service runs searches end to end against one storage engine.
type Service struct {
	engine    storage.Engine
	analyzer  *analyzer.Service
	strategy  *strategy.Engine
	providers *provider.Manager
	processor *processor.Processor
	optimizer *optimizer.Optimizer
	cfg       config.Config
	log       *logger.Logger
}

// NewService wires the pipeline stages together.
func NewService(
	engine storage.Engine,
	analyzerSvc *analyzer.Service,
	strategyEng *strategy.Engine,
	providers *provider.Manager,
	proc *processor.Processor,
	opt *optimizer.Optimizer,
	cfg config.Config,
	log *logger.Logger,
) *Service {
	return &Service{
		engine:    engine,
		analyzer:  analyzerSvc,
		strategy:  strategyEng,
		providers: providers,
		processor: proc,
		optimizer: opt,
		cfg:       cfg,
		log:       log.WithComponent("search"),
	}
}

// Request represents a search request.
type Request struct {
	// Query is the search query text.
	Query string `json:"query"`

	// Collection is the collection to search in.
	Collection string `json:"collection"`

	// Limit is the number of results to return; zero takes the default.
	Limit int `json:"limit,omitempty"`

	// Offset paginates into the result list.
	Offset int `json:"offset,omitempty"`

	// Filters restrict results by metadata equality.
	Filters map[string]string `json:"filters,omitempty"`

	// Weights overrides the computed fusion weights.
	Weights *strategy.FusionWeights `json:"weights,omitempty"`

	// Context carries session signals shaping analysis and strategy.
	Context *analyzer.Context `json:"context,omitempty"`

	// Diversification overrides the configured diversification
	// algorithm for this request.
	Diversification string `json:"diversification,omitempty"`
}

// Response represents a search response.
type Response struct {
	// Query is the original query.
	Query string `json:"query"`

	// Collection is the collection that was searched.
	Collection string `json:"collection"`

	// Results are the final optimized results.
	Results []result.Optimized `json:"results"`

	// Total is the number of matches before pagination.
	Total int `json:"total"`

	// Analysis is the query analysis that drove the plan.
	Analysis *analyzer.Analysis `json:"analysis,omitempty"`

	// Strategy is the strategy that actually executed.
	Strategy strategy.Strategy `json:"strategy"`

	// Degraded is set when the semantic leg failed and the search fell
	// back to lexical retrieval.
	Degraded bool `json:"degraded,omitempty"`

	// Metadata describes how the search was performed.
	Metadata Metadata `json:"metadata"`
}

// Metadata contains per-stage timing and execution details.
type Metadata struct {
	SearchTimeMs    int64 `json:"search_time_ms"`
	AnalyzeTimeMs   int64 `json:"analyze_time_ms"`
	EmbedTimeMs     int64 `json:"embed_time_ms,omitempty"`
	RetrievalTimeMs int64 `json:"retrieval_time_ms"`
	ProcessTimeMs   int64 `json:"process_time_ms"`
	OptimizeTimeMs  int64 `json:"optimize_time_ms"`

	// Candidates is how many raw rows retrieval produced.
	Candidates int `json:"candidates"`

	// Fusion names the fusion method when both signals contributed.
	Fusion string `json:"fusion,omitempty"`

	// FallbacksTried counts lexical fallback strategies executed after
	// an empty or failed primary retrieval.
	FallbacksTried int `json:"fallbacks_tried,omitempty"`
}

// Search performs an analyzed, planned, fused and optimized search.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.Collection == "" {
		return nil, errors.New(errors.KindValidation, "collection is required")
	}

	qctx := req.Context
	if qctx == nil {
		qctx = &analyzer.Context{}
	}
	if qctx.Collection == "" {
		qctx.Collection = req.Collection
	}

	analyzeStart := time.Now()
	analysis, err := s.analyzer.Analyze(ctx, req.Query, qctx)
	if err != nil {
		return nil, err
	}
	analyzeTime := time.Since(analyzeStart)

	info, err := s.engine.GetCollectionInfo(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	plan, err := s.strategy.Select(analysis, qctx, strategy.Options{
		EmbeddingsReady: embeddingsReady(info),
		CorpusSize:      info.DocumentCount,
		Filters:         req.Filters,
		Limit:           req.Limit,
		Offset:          req.Offset,
		Weights:         req.Weights,
		UserID:          qctx.UserID,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, plan.Timeout)
	defer cancel()

	resp := &Response{
		Query:      req.Query,
		Collection: req.Collection,
		Analysis:   analysis,
		Strategy:   plan.Primary,
		Metadata:   Metadata{AnalyzeTimeMs: analyzeTime.Milliseconds()},
	}

	// Semantic leg. A failure here degrades to lexical retrieval
	// instead of failing the search.
	var vecCandidates []fusion.VectorCandidate
	if plan.Primary == strategy.StrategySemantic {
		embedStart := time.Now()
		vecCandidates, err = s.vectorLeg(ctx, req.Collection, info, analysis.Normalized, plan.MaxCandidates)
		resp.Metadata.EmbedTimeMs = time.Since(embedStart).Milliseconds()
		if err != nil {
			s.log.Warn("semantic retrieval failed, falling back to lexical",
				"collection", req.Collection, "error", err.Error())
			resp.Degraded = true
			resp.Strategy = lexicalFallback(plan)
			s.strategy.RecordOutcome(strategy.Outcome{
				UserID:   qctx.UserID,
				Intent:   analysis.Intent,
				Strategy: strategy.StrategySemantic,
				Success:  false,
			})
		}
	}

	retrievalStart := time.Now()
	raws, fallbacksTried, err := s.retrieve(ctx, req.Collection, resp.Strategy, plan, analysis.Normalized, vecCandidates)
	if err != nil {
		return nil, err
	}
	resp.Metadata.RetrievalTimeMs = time.Since(retrievalStart).Milliseconds()
	resp.Metadata.Candidates = len(raws)
	resp.Metadata.FallbacksTried = fallbacksTried
	if len(vecCandidates) > 0 {
		resp.Metadata.Fusion = string(plan.Fusion)
	}

	raws = filterByMetadata(raws, plan.Filters)

	processStart := time.Now()
	ranked, err := s.processor.Process(ctx, raws, processor.Options{
		Query:         analysis.Normalized,
		Normalization: processor.Normalization(plan.Normalization),
		MinScore:      s.cfg.Search.MinScore,
		Dedup:         s.cfg.Search.EnableDedup,
		ContextTerms:  contextTerms(qctx),
	})
	if err != nil {
		return nil, err
	}
	resp.Metadata.ProcessTimeMs = time.Since(processStart).Milliseconds()

	optimizeStart := time.Now()
	optimized := s.optimizer.Optimize(ctx, ranked, optimizer.Options{
		Query:     analysis.Normalized,
		UserID:    qctx.UserID,
		Algorithm: req.Diversification,
	})
	resp.Metadata.OptimizeTimeMs = time.Since(optimizeStart).Milliseconds()

	resp.Total = len(optimized)
	resp.Results = paginate(optimized, plan.Offset, plan.Limit)
	resp.Metadata.SearchTimeMs = time.Since(start).Milliseconds()

	s.strategy.RecordOutcome(strategy.Outcome{
		UserID:   qctx.UserID,
		Intent:   analysis.Intent,
		Strategy: resp.Strategy,
		Success:  len(resp.Results) > 0,
	})

	return resp, nil
}

// Feedback forwards interaction outcomes to the optimizer's
// personalization state.
func (s *Service) Feedback(ctx context.Context, query string, results []result.Optimized, interactions []optimizer.Interaction) error {
	return s.optimizer.ProvideFeedback(ctx, query, results, interactions)
}

// vectorLeg embeds the query and ranks the collection's stored vectors
// against it.
func (s *Service) vectorLeg(ctx context.Context, collection string, info *storage.CollectionInfo, query string, topK int) ([]fusion.VectorCandidate, error) {
	p, err := s.providers.GetProvider(ctx, collection, s.providerConfig(info))
	if err != nil {
		return nil, err
	}

	qvec, err := p.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := s.engine.Select(ctx,
		`SELECT doc_id, embedding FROM vectors WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}

	docs := make([]fusion.VectorDoc, 0, len(rows))
	for _, row := range rows {
		blob, ok := row["embedding"].([]byte)
		if !ok {
			continue
		}
		vec, err := storage.DecodeVector(blob)
		if err != nil {
			s.log.Warn("skipping undecodable vector",
				"collection", collection, "doc_id", rowString(row, "doc_id"))
			continue
		}
		docs = append(docs, fusion.VectorDoc{DocID: rowString(row, "doc_id"), Embedding: vec})
	}

	return fusion.RankVectors(qvec, docs, topK), nil
}

// retrieve executes the plan's SQL, walking the lexical fallback chain
// when the primary retrieval errors or comes back empty.
func (s *Service) retrieve(ctx context.Context, collection string, strat strategy.Strategy, plan *strategy.ExecutionPlan, query string, vec []fusion.VectorCandidate) ([]result.Raw, int, error) {
	raws, err := s.executeStrategy(ctx, collection, strat, plan, query, vec)
	if err == nil && len(raws) > 0 {
		return raws, 0, nil
	}
	if err != nil {
		s.log.Warn("primary retrieval failed",
			"strategy", string(strat), "error", err.Error())
	}

	tried := 0
	for _, fb := range plan.Fallbacks {
		if fb == strat || fb == strategy.StrategySemantic {
			continue
		}
		tried++
		fbRaws, fbErr := s.executeStrategy(ctx, collection, fb, plan, query, nil)
		if fbErr != nil {
			s.log.Warn("fallback retrieval failed",
				"strategy", string(fb), "error", fbErr.Error())
			err = fbErr
			continue
		}
		if len(fbRaws) > 0 {
			return fbRaws, tried, nil
		}
	}

	if err != nil {
		// Every attempt errored; surface the last failure.
		return nil, tried, err
	}
	return []result.Raw{}, tried, nil
}

// executeStrategy builds and runs the SQL for one strategy.
func (s *Service) executeStrategy(ctx context.Context, collection string, strat strategy.Strategy, plan *strategy.ExecutionPlan, query string, vec []fusion.VectorCandidate) ([]result.Raw, error) {
	lexical := strat
	if lexical == strategy.StrategySemantic {
		lexical = strategy.StrategyKeyword
	}
	matchExpr := fusion.MatchExpression(string(lexical), query)

	var (
		sql  string
		args []any
	)
	switch {
	case len(vec) > 0 && plan.Fusion == strategy.FusionRRF:
		sql, args = fusion.BuildHybridRRF(collection, matchExpr, vec, fusion.DefaultK, plan.MaxCandidates, plan.MaxCandidates, 0)
	case len(vec) > 0:
		w := fusion.Weights{Fts: plan.Weights.Fts, Vector: plan.Weights.Vector}
		sql, args = fusion.BuildHybridWeighted(collection, matchExpr, vec, w, plan.MaxCandidates, plan.MaxCandidates, 0)
	default:
		sql, args = fusion.BuildFTSQuery(collection, matchExpr, plan.MaxCandidates, 0)
	}

	rows, err := s.engine.Select(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return toRaws(rows, len(vec) > 0), nil
}

// providerConfig maps a collection's embedding config onto a provider
// config, with process-level credentials as fallback.
func (s *Service) providerConfig(info *storage.CollectionInfo) provider.Config {
	cfg := provider.Config{
		ProviderKind: provider.Kind(info.Embedding.ProviderKind),
		Model:        info.Embedding.Model,
		Dimensions:   info.Embedding.Dimensions,
		APIKey:       info.Embedding.APIKey,
		BaseURL:      s.cfg.Provider.RemoteBaseURL,
		BatchSize:    info.Embedding.BatchSize,
		Timeout:      info.Embedding.Timeout,
		AutoGenerate: info.Embedding.AutoGenerate,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = s.cfg.Provider.APIKey
	}
	return cfg
}

// embeddingsReady reports whether the collection can serve vector
// queries.
func embeddingsReady(info *storage.CollectionInfo) bool {
	return info.Embedding.ProviderKind != "" && info.Embedding.Dimensions > 0
}

// lexicalFallback picks the strategy that replaces a failed semantic
// leg.
func lexicalFallback(plan *strategy.ExecutionPlan) strategy.Strategy {
	for _, fb := range plan.Fallbacks {
		if fb != strategy.StrategySemantic {
			return fb
		}
	}
	return strategy.StrategyKeyword
}

// contextTerms collects the session signals feeding the context score.
func contextTerms(qctx *analyzer.Context) []string {
	terms := append([]string(nil), qctx.ClickedTerms...)
	return append(terms, qctx.RecentQueries...)
}

// filterByMetadata drops rows whose metadata does not match every
// filter.
func filterByMetadata(raws []result.Raw, filters map[string]string) []result.Raw {
	if len(filters) == 0 {
		return raws
	}
	out := raws[:0]
	for _, r := range raws {
		keep := true
		for k, v := range filters {
			if r.Metadata[k] != v {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

func paginate(rows []result.Optimized, offset, limit int) []result.Optimized {
	if offset >= len(rows) {
		return []result.Optimized{}
	}
	rows = rows[offset:]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// toRaws converts engine rows into raw results.
func toRaws(rows []storage.Row, fused bool) []result.Raw {
	source := result.SourceFts
	if fused {
		source = result.SourceFused
	}

	out := make([]result.Raw, 0, len(rows))
	for _, row := range rows {
		r := result.Raw{
			ID:        rowString(row, "id"),
			Title:     rowString(row, "title"),
			Content:   rowString(row, "content"),
			Score:     rowFloat(row, "score"),
			Source:    source,
			UpdatedAt: rowTime(row, "updated_at"),
		}
		if meta := rowString(row, "metadata"); meta != "" && meta != "{}" {
			var m map[string]string
			if json.Unmarshal([]byte(meta), &m) == nil {
				r.Metadata = m
			}
		}
		out = append(out, r)
	}
	return out
}

func rowString(row storage.Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func rowFloat(row storage.Row, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// rowTime tolerates the timestamp shapes the driver may hand back.
func rowTime(row storage.Row, key string) time.Time {
	switch v := row[key].(type) {
	case time.Time:
		return v
	case int64:
		return time.UnixMilli(v)
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", v); err == nil {
			return t
		}
	}
	return time.Time{}
}
