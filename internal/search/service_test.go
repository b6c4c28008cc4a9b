package search

import (
	"context"
	"testing"
	"time"

	"github.com/sablesearch/sable-search/internal/analyzer"
	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/provider"
	"github.com/sablesearch/sable-search/internal/search/optimizer"
	"github.com/sablesearch/sable-search/internal/search/processor"
	"github.com/sablesearch/sable-search/internal/storage"
	"github.com/sablesearch/sable-search/internal/strategy"
)

func newTestService(t *testing.T) (*Service, *storage.SQLite) {
	t.Helper()

	engine, err := storage.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })

	cfg := &config.Config{}
	if loaded, err := config.LoadFromEnv(); err == nil {
		cfg = loaded
	} else {
		t.Fatal(err)
	}

	log := logger.Default()
	providers := provider.NewManager(cfg.Provider, log)
	t.Cleanup(providers.Close)

	svc := NewService(
		engine,
		analyzer.NewService(cfg.Analyzer, log),
		strategy.NewEngine(cfg.Search, log),
		providers,
		processor.New(cfg.Search, log),
		optimizer.New(cfg.Optimizer, nil, optimizer.NewMemoryProfileStore(), log),
		*cfg,
		log,
	)
	return svc, engine
}

func seedCollection(t *testing.T, engine *storage.SQLite, name string, embedding storage.EmbeddingConfig) {
	t.Helper()
	if err := engine.CreateCollection(context.Background(), name, embedding); err != nil {
		t.Fatal(err)
	}
}

func seedDocument(t *testing.T, engine *storage.SQLite, collection, id, title, content, metadata string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	if metadata == "" {
		metadata = "{}"
	}
	err := engine.Exec(ctx,
		`INSERT INTO documents (collection, id, title, content, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		collection, id, title, content, metadata, now, now)
	if err != nil {
		t.Fatal(err)
	}
	err = engine.Exec(ctx,
		`INSERT INTO documents_fts (title, content, collection, doc_id) VALUES (?, ?, ?, ?)`,
		title, content, collection, id)
	if err != nil {
		t.Fatal(err)
	}
}

func lexicalEmbedding() storage.EmbeddingConfig {
	// No provider: the collection serves lexical queries only.
	return storage.EmbeddingConfig{}
}

func TestSearchRequiresCollection(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Search(context.Background(), Request{Query: "golang"})
	if errors.KindOf(err) != errors.KindValidation {
		t.Fatalf("kind = %v, want validation", errors.KindOf(err))
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	svc, engine := newTestService(t)
	seedCollection(t, engine, "docs", lexicalEmbedding())

	_, err := svc.Search(context.Background(), Request{Query: "   ", Collection: "docs"})
	if errors.KindOf(err) != errors.KindValidation {
		t.Fatalf("kind = %v, want validation", errors.KindOf(err))
	}
}

func TestSearchUnknownCollection(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Search(context.Background(), Request{Query: "golang", Collection: "missing"})
	if err == nil {
		t.Fatal("expected an error for a missing collection")
	}
}

func TestSearchLexical(t *testing.T) {
	svc, engine := newTestService(t)
	seedCollection(t, engine, "docs", lexicalEmbedding())
	seedDocument(t, engine, "docs", "d1", "concurrency in practice",
		"goroutines and channels make concurrency tractable", "")
	seedDocument(t, engine, "docs", "d2", "storage engines",
		"b-trees and write ahead logs", "")

	resp, err := svc.Search(context.Background(), Request{
		Query:      "concurrency channels",
		Collection: "docs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if resp.Results[0].ID != "d1" {
		t.Fatalf("top result = %q, want d1", resp.Results[0].ID)
	}
	if resp.Results[0].Rank != 1 {
		t.Fatalf("rank = %d, want 1", resp.Results[0].Rank)
	}
	if len(resp.Results[0].Snippets) == 0 {
		t.Fatal("expected snippets on the top result")
	}
	if resp.Strategy != strategy.StrategyKeyword {
		t.Fatalf("strategy = %q, want keyword", resp.Strategy)
	}
	if resp.Degraded {
		t.Fatal("lexical search must not report degradation")
	}
	if resp.Metadata.SearchTimeMs < 0 || resp.Metadata.RetrievalTimeMs < 0 {
		t.Fatalf("negative timings: %+v", resp.Metadata)
	}
}

func TestSearchExactPhrase(t *testing.T) {
	svc, engine := newTestService(t)
	seedCollection(t, engine, "docs", lexicalEmbedding())
	seedDocument(t, engine, "docs", "d1", "release notes",
		"the exact phrase garbage collector appears here", "")
	seedDocument(t, engine, "docs", "d2", "unrelated",
		"garbage trucks and trash collector schedules", "")

	resp, err := svc.Search(context.Background(), Request{
		Query:      `"garbage collector"`,
		Collection: "docs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Strategy != strategy.StrategyExactMatch {
		t.Fatalf("strategy = %q, want exact_match", resp.Strategy)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "d1" {
		t.Fatalf("expected only the phrase match, got %d results", len(resp.Results))
	}
}

func TestSearchMetadataFilters(t *testing.T) {
	svc, engine := newTestService(t)
	seedCollection(t, engine, "docs", lexicalEmbedding())
	seedDocument(t, engine, "docs", "d1", "kafka intro", "kafka topics and partitions",
		`{"lang":"en"}`)
	seedDocument(t, engine, "docs", "d2", "kafka guide", "kafka consumer groups",
		`{"lang":"de"}`)

	resp, err := svc.Search(context.Background(), Request{
		Query:      "kafka",
		Collection: "docs",
		Filters:    map[string]string{"lang": "de"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != "d2" {
		t.Fatalf("filter should keep only d2, got %d results", len(resp.Results))
	}
}

func TestSearchPagination(t *testing.T) {
	svc, engine := newTestService(t)
	seedCollection(t, engine, "docs", lexicalEmbedding())
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		seedDocument(t, engine, "docs", id, "redis notes "+id,
			"redis "+id+" persistence and eviction details for "+id, "")
	}

	resp, err := svc.Search(context.Background(), Request{
		Query:      "redis",
		Collection: "docs",
		Limit:      2,
		Offset:     1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 4 {
		t.Fatalf("total = %d, want 4", resp.Total)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("page size = %d, want 2", len(resp.Results))
	}
}

func TestSearchSemanticHybrid(t *testing.T) {
	svc, engine := newTestService(t)
	embedding := storage.EmbeddingConfig{
		ProviderKind: "local",
		Model:        "hash-64",
		Dimensions:   64,
		AutoGenerate: true,
	}
	seedCollection(t, engine, "docs", embedding)

	docs := map[string]string{
		"d1": "how the garbage collector reclaims memory in long running services",
		"d2": "recipes for sourdough bread and pastry",
	}
	for id, content := range docs {
		seedDocument(t, engine, "docs", id, "doc "+id, content, "")
	}

	// Store vectors from the same provider the search will use.
	ctx := context.Background()
	p, err := provider.New(provider.Config{
		ProviderKind: provider.KindLocal,
		Model:        "hash-64",
		Dimensions:   64,
	}, provider.Deps{Log: logger.Default()})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	for id, content := range docs {
		vec, err := p.GenerateEmbedding(ctx, content)
		if err != nil {
			t.Fatal(err)
		}
		if err := engine.StoreVector(ctx, "docs", id, vec); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := svc.Search(ctx, Request{
		Query:      "how does the garbage collector reclaim memory",
		Collection: "docs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Strategy != strategy.StrategySemantic {
		t.Fatalf("strategy = %q, want semantic", resp.Strategy)
	}
	if resp.Degraded {
		t.Fatal("semantic search with a working provider must not degrade")
	}
	if resp.Metadata.Fusion != string(strategy.FusionRRF) {
		t.Fatalf("fusion = %q, want rrf", resp.Metadata.Fusion)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	if resp.Results[0].ID != "d1" {
		t.Fatalf("top result = %q, want d1", resp.Results[0].ID)
	}
}

func TestSearchDegradesOnProviderFailure(t *testing.T) {
	svc, engine := newTestService(t)
	embedding := storage.EmbeddingConfig{
		ProviderKind: "bogus",
		Model:        "nope",
		Dimensions:   64,
	}
	seedCollection(t, engine, "docs", embedding)
	seedDocument(t, engine, "docs", "d1", "collector internals",
		"how the garbage collector reclaims unused memory", "")

	resp, err := svc.Search(context.Background(), Request{
		Query:      "how does the garbage collector reclaim memory",
		Collection: "docs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Degraded {
		t.Fatal("expected degraded response when the provider cannot be built")
	}
	if resp.Strategy == strategy.StrategySemantic {
		t.Fatalf("degraded search must not report the semantic strategy")
	}
	if len(resp.Results) == 0 {
		t.Fatal("degraded search should still return lexical results")
	}
}

func TestSearchFallbackOnNoMatches(t *testing.T) {
	svc, engine := newTestService(t)
	seedCollection(t, engine, "docs", lexicalEmbedding())
	seedDocument(t, engine, "docs", "d1", "postgres tuning",
		"vacuum and autovacuum settings", "")

	resp, err := svc.Search(context.Background(), Request{
		Query:      "completely absent terms",
		Collection: "docs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(resp.Results))
	}
}

func TestHealthChecker(t *testing.T) {
	svc, engine := newTestService(t)
	_ = svc

	checker := NewHealthChecker(engine, nil)
	health := checker.Check(context.Background())
	if !health.Healthy {
		t.Fatalf("expected healthy report, got %+v", health)
	}
	if !health.Checks["storage"].Healthy {
		t.Fatal("storage check should pass on an open engine")
	}
}
