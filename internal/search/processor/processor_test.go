package processor

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/search/result"
)

func testProcessor() *Processor {
	return New(config.SearchConfig{
		MaxResults:     500,
		SnippetWindow:  5,
		SnippetMatches: 3,
		HighlightPre:   "<mark>",
		HighlightPost:  "</mark>",
	}, logger.New("error", "text"))
}

func rawResult(id, title, content string, score float64) result.Raw {
	return result.Raw{ID: id, Title: title, Content: content, Score: score}
}

func TestPrefilter(t *testing.T) {
	p := testProcessor()
	raws := []result.Raw{
		rawResult("keep", "Title", "content here", 0.9),
		rawResult("low", "Title", "content", 0.1),
		rawResult("empty", "", "   ", 0.8),
	}

	rows, err := p.Process(context.Background(), raws, Options{Query: "content", MinScore: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ID != "keep" {
		t.Errorf("rows = %+v, want only keep", rows)
	}
}

func TestMinMaxNormalizationIdempotent(t *testing.T) {
	rows := []result.Ranked{
		{Raw: result.Raw{ID: "a", Score: 10}},
		{Raw: result.Raw{ID: "b", Score: 55}},
		{Raw: result.Raw{ID: "c", Score: 100}},
	}
	normalizeScores(rows, NormMinMax)

	first := make([]float64, len(rows))
	for i := range rows {
		first[i] = rows[i].NormalizedScore
		rows[i].Score = rows[i].NormalizedScore
	}

	normalizeScores(rows, NormMinMax)
	for i := range rows {
		if math.Abs(rows[i].NormalizedScore-first[i]) > 1e-12 {
			t.Errorf("row %d: re-normalized %v != %v", i, rows[i].NormalizedScore, first[i])
		}
	}
	if first[0] != 0 || first[2] != 1 {
		t.Errorf("min-max bounds = [%v, %v], want [0, 1]", first[0], first[2])
	}
}

func TestZScoreNormalization(t *testing.T) {
	rows := []result.Ranked{
		{Raw: result.Raw{Score: 1}},
		{Raw: result.Raw{Score: 2}},
		{Raw: result.Raw{Score: 3}},
	}
	normalizeScores(rows, NormZScore)

	var sum float64
	for i := range rows {
		sum += rows[i].NormalizedScore
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("z-scores should sum to ~0, got %v", sum)
	}

	// Identical scores normalize to zero, not NaN.
	flat := []result.Ranked{{Raw: result.Raw{Score: 5}}, {Raw: result.Raw{Score: 5}}}
	normalizeScores(flat, NormZScore)
	for i := range flat {
		if flat[i].NormalizedScore != 0 {
			t.Errorf("flat z-score = %v, want 0", flat[i].NormalizedScore)
		}
	}
}

func TestDeduplication(t *testing.T) {
	p := testProcessor()
	long := strings.Repeat("same leading content across both copies ", 10)
	raws := []result.Raw{
		rawResult("first", "Duplicate Title", long+"tail one", 0.9),
		rawResult("second", "duplicate title", long+"tail two", 0.7),
		rawResult("third", "Different", "entirely different body", 0.5),
	}

	rows, err := p.Process(context.Background(), raws, Options{Query: "content", Dedup: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 after dedup", len(rows))
	}
	for _, r := range rows {
		if r.ID == "second" {
			t.Error("the lower-scored duplicate should be dropped")
		}
	}
}

func TestSnippetExtraction(t *testing.T) {
	s := newSnippetExtractor(2, 3, 10)

	content := "one two three target five six seven eight nine ten"
	snippets := s.extract(content, []string{"target"})
	if len(snippets) != 1 {
		t.Fatalf("snippets = %v, want 1", snippets)
	}
	want := "... two three target five six ..."
	if snippets[0] != want {
		t.Errorf("snippet = %q, want %q", snippets[0], want)
	}
}

func TestSnippetFallbackToLeading(t *testing.T) {
	s := newSnippetExtractor(2, 3, 10)
	content := "alpha beta gamma delta epsilon zeta eta"
	snippets := s.extract(content, []string{"missing"})
	if len(snippets) != 1 {
		t.Fatalf("snippets = %v, want leading fallback", snippets)
	}
	if !strings.HasPrefix(snippets[0], "alpha beta") || !strings.HasSuffix(snippets[0], ellipsis) {
		t.Errorf("leading snippet = %q", snippets[0])
	}
}

func TestSnippetMatchCap(t *testing.T) {
	s := newSnippetExtractor(1, 2, 10)
	content := "x hit x x x hit x x x hit x x x hit x"
	snippets := s.extract(content, []string{"hit"})
	if len(snippets) > 2 {
		t.Errorf("snippets = %d, want at most 2", len(snippets))
	}
}

func TestSnippetCacheBounded(t *testing.T) {
	s := newSnippetExtractor(2, 3, 2)
	s.extract("content one here", []string{"one"})
	s.extract("content two here", []string{"two"})
	s.extract("content three here", []string{"three"})
	if len(s.cache) > 2 {
		t.Errorf("cache size = %d, want bounded at 2", len(s.cache))
	}
}

func TestHighlighting(t *testing.T) {
	got := highlight("The Quick fox jumps", []string{"quick", "jumps"}, "<b>", "</b>")
	want := "The <b>Quick</b> fox <b>jumps</b>"
	if got != want {
		t.Errorf("highlight = %q, want %q", got, want)
	}
}

func TestRerankComposite(t *testing.T) {
	p := testProcessor()
	raws := []result.Raw{
		rawResult("a", "Rich Title", strings.Repeat("lots of body text ", 20), 1.0),
		rawResult("b", "Rich Title", strings.Repeat("lots of body text ", 20), 0.8),
		rawResult("c", "Other Topic", "short", 0.6),
	}

	rows, err := p.Process(context.Background(), raws, Options{Query: "body"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	for i, r := range rows {
		if r.Rank != i+1 {
			t.Errorf("rank[%d] = %d, want %d", i, r.Rank, i+1)
		}
		if len(r.Explanation) != 4 {
			t.Fatalf("explanation components = %d, want 4", len(r.Explanation))
		}
		var total float64
		for _, c := range r.Explanation {
			total += c.Weighted
		}
		if math.Abs(total-r.FinalScore) > 1e-9 {
			t.Errorf("explanation sums to %v, final score is %v", total, r.FinalScore)
		}
	}

	// The near-duplicate of the top result pays a diversity penalty.
	var dup result.Ranked
	for _, r := range rows {
		if r.ID == "b" {
			dup = r
		}
	}
	if dup.DiversityScore >= 0.5 {
		t.Errorf("duplicate diversity = %v, want penalized", dup.DiversityScore)
	}
}

func TestContextScore(t *testing.T) {
	p := testProcessor()
	raws := []result.Raw{
		rawResult("match", "database tuning", "about database index tuning", 0.5),
		rawResult("other", "cooking", "about pasta recipes", 0.5),
	}

	rows, err := p.Process(context.Background(), raws, Options{
		Query:        "tuning",
		ContextTerms: []string{"database", "index"},
	})
	if err != nil {
		t.Fatal(err)
	}

	scores := map[string]float64{}
	for _, r := range rows {
		scores[r.ID] = r.ContextScore
	}
	if scores["match"] <= scores["other"] {
		t.Errorf("context scores: match=%v other=%v, want match higher", scores["match"], scores["other"])
	}
}

func TestLimitAndRanks(t *testing.T) {
	p := testProcessor()
	var raws []result.Raw
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		raws = append(raws, rawResult(id, "Title "+id, "body content "+id, 0.5))
	}

	rows, err := p.Process(context.Background(), raws, Options{Query: "content", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want limit 3", len(rows))
	}
	for i, r := range rows {
		if r.Rank != i+1 {
			t.Errorf("rank = %d, want %d", r.Rank, i+1)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	p := testProcessor()
	rows, err := p.Process(context.Background(), nil, Options{Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}
