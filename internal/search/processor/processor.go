// Package processor turns raw storage rows into ranked, snippeted,
// highlighted results.
package processor

import (
	"context"
	"sort"
	"strings"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/hash"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/search/result"
)

// contentFingerprintLen is how much leading content joins the title in
// the dedup fingerprint.
const contentFingerprintLen = 100

// Options configure one processing run.
type Options struct {
	// Query is the normalized query whose tokens drive snippets and
	// highlighting.
	Query string

	// Normalization selects the score normalization mode.
	Normalization Normalization

	// MinScore drops rows scoring below it before any other work.
	MinScore float64

	// Dedup enables fingerprint deduplication.
	Dedup bool

	// ContextTerms are session and click-history terms feeding the
	// context score.
	ContextTerms []string

	// Limit caps the final list; zero keeps everything.
	Limit int
}

// Processor is the base result pipeline.
type Processor struct {
	cfg      config.SearchConfig
	snippets *snippetExtractor
	log      *logger.Logger
}

// New creates a result processor.
func New(cfg config.SearchConfig, log *logger.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		snippets: newSnippetExtractor(cfg.SnippetWindow, cfg.SnippetMatches, cfg.MaxResults),
		log:      log.WithComponent("processor"),
	}
}

// Process runs the full base pipeline: pre-filter, normalize, dedup,
// snippet, highlight, re-rank, finalize.
func (p *Processor) Process(ctx context.Context, raws []result.Raw, opts Options) ([]result.Ranked, error) {
	if err := ctx.Err(); err != nil {
		return nil, processingError(errors.Wrap(errors.KindTimeout, "processing cancelled", err), raws, opts)
	}

	rows := p.prefilter(raws, opts.MinScore)
	if len(rows) == 0 {
		return []result.Ranked{}, nil
	}

	normalizeScores(rows, opts.Normalization)

	if opts.Dedup {
		rows = deduplicate(rows)
	}

	tokens := queryTokens(opts.Query)
	for i := range rows {
		rows[i].Snippets = p.snippets.extract(rows[i].Content, tokens)
		rows[i].Highlights = highlightAll(rows[i].Snippets, tokens, p.cfg.HighlightPre, p.cfg.HighlightPost)
	}

	rerank(rows, opts.ContextTerms)

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].FinalScore != rows[j].FinalScore {
			return rows[i].FinalScore > rows[j].FinalScore
		}
		return rows[i].ID < rows[j].ID
	})
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}

	return rows, nil
}

// prefilter drops rows below the score floor or with no usable text,
// and caps the input size.
func (p *Processor) prefilter(raws []result.Raw, minScore float64) []result.Ranked {
	maxInput := p.cfg.MaxResults
	if maxInput <= 0 {
		maxInput = len(raws)
	}

	rows := make([]result.Ranked, 0, min(len(raws), maxInput))
	for _, r := range raws {
		if len(rows) >= maxInput {
			break
		}
		if r.Score < minScore {
			continue
		}
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Content) == "" {
			continue
		}
		rows = append(rows, result.Ranked{Raw: r})
	}
	return rows
}

// deduplicate keeps the first row per content fingerprint. Rows arrive
// score-ordered from storage, so first wins keeps the best scoring.
func deduplicate(rows []result.Ranked) []result.Ranked {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		fp := fingerprintOf(&r.Raw)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, r)
	}
	return out
}

// fingerprintOf identifies near-identical documents by lowercased
// title plus the leading content.
func fingerprintOf(r *result.Raw) string {
	content := r.Content
	if len(content) > contentFingerprintLen {
		content = content[:contentFingerprintLen]
	}
	return hash.Fingerprint(strings.ToLower(r.Title), strings.ToLower(content))
}

func highlightAll(snippets, tokens []string, pre, post string) []string {
	if len(snippets) == 0 {
		return nil
	}
	out := make([]string, len(snippets))
	for i, s := range snippets {
		out[i] = highlight(s, tokens, pre, post)
	}
	return out
}

func queryTokens(query string) []string {
	var out []string
	for _, w := range strings.Fields(query) {
		if t := normalizeWord(w); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// processingError wraps a stage failure with run context.
func processingError(err error, raws []result.Raw, opts Options) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.WithContext("result_count", len(raws)).WithContext("query", opts.Query)
	}
	return errors.Wrap(errors.KindUnknown, "result processing failed", err).
		WithContext("result_count", len(raws)).
		WithContext("query", opts.Query)
}
