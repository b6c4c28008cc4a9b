package optimizer

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/search/result"
)

func testConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		ModelWeight:     0.3,
		Diversification: DiversifyNone,
		DiversityAlpha:  0.7,
		Personalization: false,
		FeedbackBuffer:  10,
	}
}

func makeRanked(id, title, content string, score float64, rank int) result.Ranked {
	return result.Ranked{
		Raw: result.Raw{
			ID:      id,
			Title:   title,
			Content: content,
			Score:   score,
		},
		NormalizedScore: score,
		FinalScore:      score,
		Rank:            rank,
	}
}

func TestOptimizeEmptyInput(t *testing.T) {
	o := New(testConfig(), nil, nil, logger.Default())
	out := o.Optimize(context.Background(), nil, Options{Query: "anything"})
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d rows", len(out))
	}
}

func TestOptimizeModelBlend(t *testing.T) {
	// A fixed model makes the blend arithmetic checkable.
	model := func(fv FeatureVector) float64 { return 0.5 }
	o := New(testConfig(), model, nil, logger.Default())

	rows := []result.Ranked{
		makeRanked("a", "alpha doc", "alpha content", 0.8, 1),
		makeRanked("b", "beta doc", "beta content", 0.4, 2),
	}
	out := o.Optimize(context.Background(), rows, Options{Query: "alpha"})

	want := 0.7*0.8 + 0.3*0.5
	if math.Abs(out[0].FinalScore-want) > 1e-9 {
		t.Fatalf("blended score = %v, want %v", out[0].FinalScore, want)
	}
	if out[0].ModelScore != 0.5 {
		t.Fatalf("model score = %v, want 0.5", out[0].ModelScore)
	}
}

func TestOptimizeRanksAndDeltas(t *testing.T) {
	// A model strongly preferring the second row must flip the order.
	model := func(fv FeatureVector) float64 {
		if fv[featContentLength] > 0.5 {
			return 10.0
		}
		return 0.0
	}
	o := New(testConfig(), model, nil, logger.Default())

	rows := []result.Ranked{
		makeRanked("a", "short", "tiny", 0.6, 1),
		makeRanked("b", "long", strings.Repeat("w ", 2000), 0.5, 2),
	}
	out := o.Optimize(context.Background(), rows, Options{})

	if out[0].ID != "b" {
		t.Fatalf("expected model to promote b, got %q first", out[0].ID)
	}
	if out[0].Rank != 1 || out[0].OriginalRank != 2 || out[0].RankDelta != 1 {
		t.Fatalf("rank bookkeeping = rank %d orig %d delta %d",
			out[0].Rank, out[0].OriginalRank, out[0].RankDelta)
	}
	if out[1].RankDelta != -1 {
		t.Fatalf("demoted row delta = %d, want -1", out[1].RankDelta)
	}
}

func TestOptimizeRecoversFromModelPanic(t *testing.T) {
	model := func(fv FeatureVector) float64 { panic("bad model") }
	o := New(testConfig(), model, nil, logger.Default())

	rows := []result.Ranked{
		makeRanked("a", "one", "content", 0.9, 1),
		makeRanked("b", "two", "content", 0.4, 2),
	}
	out := o.Optimize(context.Background(), rows, Options{})

	if len(out) != 2 {
		t.Fatalf("expected base ranking back, got %d rows", len(out))
	}
	if out[0].ID != "a" || out[0].FinalScore != 0.9 {
		t.Fatalf("base ranking not preserved: %+v", out[0])
	}
}

func TestExtractFeaturesOverlapAndFreshness(t *testing.T) {
	now := time.Now()
	r := makeRanked("a", "go concurrency patterns", "channels and goroutines", 0.5, 1)
	r.UpdatedAt = now.Add(-freshnessHalfLife)

	fv := extractFeatures(&r, queryTermSet("go channels"), now)

	if fv[featTitleOverlap] != 0.5 {
		t.Fatalf("title overlap = %v, want 0.5", fv[featTitleOverlap])
	}
	if fv[featContentOverlap] != 0.5 {
		t.Fatalf("content overlap = %v, want 0.5", fv[featContentOverlap])
	}
	if math.Abs(fv[featFreshness]-0.5) > 1e-9 {
		t.Fatalf("freshness at half-life = %v, want 0.5", fv[featFreshness])
	}
}

func TestDiversifyGreedyDemotesNearDuplicates(t *testing.T) {
	rows := []result.Optimized{
		{Ranked: makeRanked("a", "go error handling guide", "wrapping errors in go", 0.9, 1)},
		{Ranked: makeRanked("b", "go error handling guide", "wrapping errors in go", 0.55, 2)},
		{Ranked: makeRanked("c", "sqlite storage tuning", "write ahead logging", 0.5, 3)},
	}

	out := diversifyGreedy(rows, 0.7)

	if out[0].ID != "a" {
		t.Fatalf("most relevant row must stay first, got %q", out[0].ID)
	}
	if out[1].ID != "c" {
		t.Fatalf("expected dissimilar row promoted to second, got %q", out[1].ID)
	}
}

func TestDiversifyClusterGroupsBySignature(t *testing.T) {
	rows := []result.Optimized{
		{Ranked: makeRanked("a", "redis caching basics", "x", 0.9, 1)},
		{Ranked: makeRanked("b", "redis caching advanced", "x", 0.8, 2)},
		{Ranked: makeRanked("c", "kafka streaming intro", "x", 0.7, 3)},
		{Ranked: makeRanked("d", "kafka streaming deep dive", "x", 0.6, 4)},
	}

	out := diversifyCluster(rows)

	if out[0].ID != "a" || out[1].ID != "c" {
		t.Fatalf("cluster heads first: got %q, %q", out[0].ID, out[1].ID)
	}
	if out[2].ID != "b" || out[3].ID != "d" {
		t.Fatalf("cluster tails after heads: got %q, %q", out[2].ID, out[3].ID)
	}
	if out[0].DiversityGroup == out[1].DiversityGroup {
		t.Fatalf("distinct topics share group %q", out[0].DiversityGroup)
	}
}

func TestDiversifyRoundRobinInterleaves(t *testing.T) {
	rows := []result.Optimized{
		{Ranked: makeRanked("a1", "alpha topic one", "x", 0.9, 1)},
		{Ranked: makeRanked("a2", "alpha topic two", "x", 0.8, 2)},
		{Ranked: makeRanked("b1", "beta subject one", "x", 0.7, 3)},
		{Ranked: makeRanked("b2", "beta subject two", "x", 0.6, 4)},
	}

	out := diversifyRoundRobin(rows)

	got := []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID}
	want := []string{"a1", "b1", "a2", "b2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("interleave order = %v, want %v", got, want)
		}
	}
}

func TestDiversifySkipsSmallSets(t *testing.T) {
	rows := []result.Optimized{
		{Ranked: makeRanked("a", "one", "x", 0.9, 1)},
		{Ranked: makeRanked("b", "one", "x", 0.8, 2)},
	}
	out := diversify(DiversifySemantic, rows, nil, 0.7)
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("small sets must pass through unchanged")
	}
}

func TestPersonalizationBoostBounds(t *testing.T) {
	now := time.Now()
	p := newProfile("u1")
	p.LastActivity = now
	p.SessionCount = 50
	for _, term := range []string{"redis", "caching", "basics"} {
		p.TermWeights[term] = 1.0
	}
	p.Clicks = append(p.Clicks, Click{DocID: "a", At: now})

	r := result.Optimized{Ranked: makeRanked("a", "redis caching basics", "redis caching", 0.5, 1)}
	boost := profileBoost(p, &r, now)

	if boost < 0 || boost > 1 {
		t.Fatalf("boost %v outside [0, 1]", boost)
	}
	if boost < 0.9 {
		t.Fatalf("full-signal boost = %v, want near 1", boost)
	}

	cold := result.Optimized{Ranked: makeRanked("z", "unrelated quantum paper", "nothing shared", 0.5, 2)}
	if b := profileBoost(newProfile("u2"), &cold, now); b != 0 {
		t.Fatalf("empty profile boost = %v, want 0", b)
	}
}

func TestOptimizePersonalizationPromotesClickedContent(t *testing.T) {
	cfg := testConfig()
	cfg.Personalization = true

	store := NewMemoryProfileStore()
	now := time.Now()
	p := newProfile("u1")
	p.LastActivity = now
	p.SessionCount = 10
	p.TermWeights["kafka"] = 1.0
	p.Clicks = append(p.Clicks, Click{DocID: "b", At: now})
	if err := store.Put(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	model := func(fv FeatureVector) float64 { return 0 }
	o := New(cfg, model, store, logger.Default())

	rows := []result.Ranked{
		makeRanked("a", "http servers", "routing handlers", 0.50, 1),
		makeRanked("b", "kafka consumers", "kafka partition rebalance", 0.48, 2),
	}
	out := o.Optimize(context.Background(), rows, Options{Query: "kafka", UserID: "u1"})

	if out[0].ID != "b" {
		t.Fatalf("personalization should promote b, got %q first", out[0].ID)
	}
	if out[0].PersonalizationBoost <= 0 {
		t.Fatalf("boost not recorded: %v", out[0].PersonalizationBoost)
	}
	if out[1].PersonalizationBoost != 0 {
		t.Fatalf("unmatched row boosted: %v", out[1].PersonalizationBoost)
	}
}

func TestProvideFeedbackReinforcesAndBuffers(t *testing.T) {
	cfg := testConfig()
	cfg.Personalization = true
	store := NewMemoryProfileStore()
	o := New(cfg, nil, store, logger.Default())
	ctx := context.Background()

	results := []result.Optimized{
		{Ranked: makeRanked("d1", "go generics tutorial", "type parameters in go", 0.9, 1)},
	}
	ints := []Interaction{{UserID: "u1", DocID: "d1", Action: ActionClicked}}

	for i := 0; i < 3; i++ {
		if err := o.ProvideFeedback(ctx, "go generics", results, ints); err != nil {
			t.Fatal(err)
		}
	}

	p, err := store.Get(ctx, "u1")
	if err != nil || p == nil {
		t.Fatalf("profile missing after feedback: %v", err)
	}
	if w := p.TermWeights["generics"]; math.Abs(w-3*termReinforcement) > 1e-9 {
		t.Fatalf("reinforced weight = %v, want %v", w, 3*termReinforcement)
	}
	if len(p.Clicks) != 3 {
		t.Fatalf("click history = %d, want 3", len(p.Clicks))
	}
	if o.FeedbackCount() != 3 {
		t.Fatalf("feedback count = %d, want 3", o.FeedbackCount())
	}

	// Ignored interactions never touch profiles.
	before := p.TermWeights["generics"]
	if err := o.ProvideFeedback(ctx, "go generics", results,
		[]Interaction{{UserID: "u1", DocID: "d1", Action: ActionIgnored}}); err != nil {
		t.Fatal(err)
	}
	p, _ = store.Get(ctx, "u1")
	if p.TermWeights["generics"] != before {
		t.Fatalf("ignored interaction changed weights")
	}
}

func TestProvideFeedbackWithoutProfileStore(t *testing.T) {
	// A nil store disables personalization; feedback is still buffered.
	o := New(testConfig(), nil, nil, logger.Default())
	ctx := context.Background()

	results := []result.Optimized{
		{Ranked: makeRanked("d1", "go generics tutorial", "type parameters in go", 0.9, 1)},
	}
	ints := []Interaction{{UserID: "u1", DocID: "d1", Action: ActionClicked}}

	if err := o.ProvideFeedback(ctx, "go generics", results, ints); err != nil {
		t.Fatalf("feedback without a store should succeed, got %v", err)
	}
	if o.FeedbackCount() != 1 {
		t.Fatalf("feedback count = %d, want 1", o.FeedbackCount())
	}
}

func TestProfileDecayAndSessionCounting(t *testing.T) {
	now := time.Now()
	p := newProfile("u1")
	p.decayForInactivity(now.Add(-2 * sessionGap))
	p.TermWeights["kafka"] = 0.5
	p.TermWeights["faint"] = minTermWeight

	p.decayForInactivity(now)

	if p.SessionCount != 2 {
		t.Fatalf("session count = %d, want 2", p.SessionCount)
	}
	if w := p.TermWeights["kafka"]; math.Abs(w-0.45) > 1e-9 {
		t.Fatalf("decayed weight = %v, want 0.45", w)
	}
	if _, ok := p.TermWeights["faint"]; ok {
		t.Fatalf("near-zero weight should be dropped")
	}
}

func TestTermWeightCap(t *testing.T) {
	p := newProfile("u1")
	now := time.Now()
	for i := 0; i < 20; i++ {
		p.recordClick("d", []string{"kafka"}, now)
	}
	if w := p.TermWeights["kafka"]; w != 1.0 {
		t.Fatalf("weight = %v, want capped at 1.0", w)
	}
}

func TestClickHistoryBound(t *testing.T) {
	p := newProfile("u1")
	now := time.Now()
	for i := 0; i < maxProfileClicks+25; i++ {
		p.recordClick("d", nil, now)
	}
	if len(p.Clicks) != maxProfileClicks {
		t.Fatalf("click history = %d, want %d", len(p.Clicks), maxProfileClicks)
	}
}

func TestFeedbackBufferBound(t *testing.T) {
	b := newFeedbackBuffer(4)
	for i := 0; i < 10; i++ {
		b.add(feedbackEvent{Query: "q"})
	}
	if b.len() != 4 {
		t.Fatalf("buffer length = %d, want 4", b.len())
	}
}

func TestMemoryProfileStoreIsolation(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()

	p := newProfile("u1")
	p.TermWeights["kafka"] = 0.5
	if err := store.Put(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	got.TermWeights["kafka"] = 99

	again, _ := store.Get(ctx, "u1")
	if again.TermWeights["kafka"] != 0.5 {
		t.Fatalf("store leaked internal state: %v", again.TermWeights["kafka"])
	}

	missing, err := store.Get(ctx, "nobody")
	if err != nil || missing != nil {
		t.Fatalf("missing profile should be nil, nil; got %v, %v", missing, err)
	}
}
