package processor

import (
	"strings"
	"sync"

	"github.com/sablesearch/sable-search/internal/pkg/hash"
)

const ellipsis = "..."

// snippetExtractor locates query tokens in content and cuts word
// windows around them. Extractions are cached by (content, query)
// with oldest-key eviction.
type snippetExtractor struct {
	window     int
	maxMatches int

	mu      sync.Mutex
	cache   map[string][]string
	order   []string
	maxSize int
}

func newSnippetExtractor(window, maxMatches, cacheSize int) *snippetExtractor {
	if window <= 0 {
		window = 5
	}
	if maxMatches <= 0 {
		maxMatches = 3
	}
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &snippetExtractor{
		window:     window,
		maxMatches: maxMatches,
		cache:      make(map[string][]string),
		maxSize:    cacheSize,
	}
}

// extract returns up to maxMatches snippets of query-token windows,
// or a leading substring when nothing matches.
func (s *snippetExtractor) extract(content string, queryTokens []string) []string {
	if content == "" {
		return nil
	}

	key := hash.CacheKey(content, strings.Join(queryTokens, " "))
	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	snippets := s.cut(content, queryTokens)

	s.mu.Lock()
	for len(s.cache) >= s.maxSize && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.cache, oldest)
	}
	s.cache[key] = snippets
	s.order = append(s.order, key)
	s.mu.Unlock()

	return snippets
}

func (s *snippetExtractor) cut(content string, queryTokens []string) []string {
	words := strings.Fields(content)
	matchSet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		matchSet[strings.ToLower(t)] = true
	}

	var snippets []string
	lastEnd := -1
	for i, word := range words {
		if len(snippets) >= s.maxMatches {
			break
		}
		if !matchSet[normalizeWord(word)] {
			continue
		}
		start := max(i-s.window, 0)
		end := min(i+s.window+1, len(words))
		if start < lastEnd {
			// Overlapping windows collapse into the previous snippet.
			continue
		}
		lastEnd = end

		snippet := strings.Join(words[start:end], " ")
		if start > 0 {
			snippet = ellipsis + " " + snippet
		}
		if end < len(words) {
			snippet = snippet + " " + ellipsis
		}
		snippets = append(snippets, snippet)
	}

	if len(snippets) == 0 {
		return []string{leadingSnippet(words, 2*s.window+1, len(words) > 2*s.window+1)}
	}
	return snippets
}

// leadingSnippet falls back to the first words of the content.
func leadingSnippet(words []string, n int, truncated bool) string {
	if len(words) > n {
		words = words[:n]
	}
	out := strings.Join(words, " ")
	if truncated {
		out += " " + ellipsis
	}
	return out
}

// highlight wraps every query-token occurrence with the configured
// markers.
func highlight(text string, queryTokens []string, pre, post string) string {
	if text == "" || len(queryTokens) == 0 {
		return text
	}
	matchSet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		matchSet[strings.ToLower(t)] = true
	}

	words := strings.Fields(text)
	changed := false
	for i, word := range words {
		if matchSet[normalizeWord(word)] {
			words[i] = pre + word + post
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

// normalizeWord lowers a word and strips edge punctuation for token
// matching.
func normalizeWord(word string) string {
	return strings.ToLower(strings.Trim(word, `"'.,!?;:()[]{}`))
}
