package analyzer

import "strings"

// historyOverlapThreshold is the minimum term-overlap ratio for a
// historical query to contribute expansion terms.
const historyOverlapThreshold = 0.3

// maxExpansions bounds the expansion list.
const maxExpansions = 10

// synonyms is the built-in synonym table used for query expansion.
var synonyms = map[string][]string{
	"document": {"file", "record", "page"},
	"search":   {"find", "lookup", "query"},
	"delete":   {"remove", "erase", "drop"},
	"create":   {"add", "insert", "new"},
	"update":   {"modify", "change", "edit"},
	"error":    {"failure", "fault", "problem"},
	"fast":     {"quick", "rapid", "speedy"},
	"big":      {"large", "huge"},
	"small":    {"little", "tiny"},
	"image":    {"picture", "photo"},
	"price":    {"cost", "fee"},
	"guide":    {"tutorial", "howto", "manual"},
	"setup":    {"install", "configure", "installation"},
}

// Expand produces expansion terms from the synonym table and from
// sufficiently overlapping historical queries. The original terms are
// not repeated in the output.
func Expand(normalized string, history []string) []string {
	terms := queryTerms(normalized)
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		seen[t] = true
	}

	var out []string
	add := func(term string) {
		if term == "" || seen[term] || len(out) >= maxExpansions {
			return
		}
		seen[term] = true
		out = append(out, term)
	}

	for _, t := range terms {
		for _, syn := range synonyms[t] {
			add(syn)
		}
	}

	for _, past := range history {
		pastTerms := queryTerms(Normalize(past))
		if overlapRatio(terms, pastTerms) > historyOverlapThreshold {
			for _, t := range pastTerms {
				add(t)
			}
		}
	}

	return out
}

// queryTerms lowercases and splits a query, dropping stopwords and
// single-character tokens.
func queryTerms(normalized string) []string {
	words := strings.Fields(strings.ToLower(normalized))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, `"'.,!?*`)
		if len(w) < 2 || stopWords[w] {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// overlapRatio computes |a ∩ b| / |a| over term sets.
func overlapRatio(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	matched := 0
	for _, t := range a {
		if set[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(a))
}
