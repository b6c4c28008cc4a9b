package analyzer

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// maxKeywords bounds how many weighted terms are kept.
const maxKeywords = 10

// Entity patterns recognized without a dictionary.
var (
	emailPattern   = regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[\w.]+\b`)
	datePattern    = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	versionPattern = regexp.MustCompile(`\bv?\d+\.\d+(\.\d+)?\b`)
	urlPattern     = regexp.MustCompile(`\bhttps?://\S+\b`)
)

// ExtractEntities finds pattern-based entities and capitalized spans in
// the normalized query.
func ExtractEntities(normalized string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(e string) {
		if e != "" && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}

	for _, p := range []*regexp.Regexp{urlPattern, emailPattern, datePattern, versionPattern} {
		for _, m := range p.FindAllString(normalized, -1) {
			add(m)
		}
	}

	// Capitalized spans: consecutive capitalized non-stopwords that
	// do not open the sentence.
	words := strings.Fields(normalized)
	var span []string
	flush := func() {
		if len(span) > 0 {
			add(strings.Join(span, " "))
			span = span[:0]
		}
	}
	for i, word := range words {
		trimmed := strings.Trim(word, `"'.,!?`)
		if trimmed == "" {
			flush()
			continue
		}
		runes := []rune(trimmed)
		capitalized := unicode.IsUpper(runes[0]) && !IsStopword(trimmed)
		if capitalized && i > 0 {
			span = append(span, trimmed)
		} else {
			flush()
		}
	}
	flush()

	return out
}

// ExtractKeywords returns the top terms weighted by frequency, inverse
// commonness and position. Earlier terms weigh slightly more.
func ExtractKeywords(normalized string) []string {
	terms := queryTerms(normalized)
	if len(terms) == 0 {
		return nil
	}

	freq := make(map[string]int, len(terms))
	firstPos := make(map[string]int, len(terms))
	for i, t := range terms {
		freq[t]++
		if _, ok := firstPos[t]; !ok {
			firstPos[t] = i
		}
	}

	type scored struct {
		term   string
		weight float64
	}
	ranked := make([]scored, 0, len(freq))
	for term, count := range freq {
		tf := float64(count) / float64(len(terms))
		// Rarity proxy: longer terms are less common in general text.
		idf := math.Log(1 + float64(len(term)))
		position := 1.0 / (1.0 + float64(firstPos[term]))
		ranked = append(ranked, scored{term, tf * idf * position})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].weight != ranked[j].weight {
			return ranked[i].weight > ranked[j].weight
		}
		return ranked[i].term < ranked[j].term
	})

	if len(ranked) > maxKeywords {
		ranked = ranked[:maxKeywords]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.term
	}
	return out
}
