package analyzer

import (
	"strings"
	"unicode"
)

// Confidence scoring constants. The increments are heuristic and tuned
// rather than derived; adjust with care and re-run the classifier tests.
const (
	confBase       = 0.5
	confQuoted     = 0.35
	confBoolean    = 0.3
	confWildcard   = 0.25
	confQuestion   = 0.22
	confShortQuery = 0.1
	confLongQuery  = 0.05
	confMin        = 0.1
	confMax        = 1.0
)

// shortQueryMaxWords is the word-count boundary between short keyword
// and long phrase queries.
const shortQueryMaxWords = 3

// entityMaxWords bounds how many words a capitalized entity query can have.
const entityMaxWords = 2

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "will": true, "with": true,
	"i": true, "me": true, "my": true, "we": true, "you": true, "your": true,
	"this": true, "these": true, "those": true, "there": true, "their": true,
}

var questionWords = map[string]bool{
	"who": true, "what": true, "when": true, "where": true, "why": true,
	"how": true, "which": true, "can": true, "does": true, "do": true,
	"is": true, "are": true, "should": true,
}

var booleanOperators = map[string]bool{
	"AND": true, "OR": true, "NOT": true,
}

// Normalize trims, collapses whitespace and strips unsafe punctuation.
// Case is preserved so entity detection can see capitalization.
func Normalize(query string) string {
	var b strings.Builder
	for _, r := range query {
		if isUnsafeRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// isUnsafeRune reports whether a rune is stripped during normalization.
// Quotes, wildcards and boolean syntax survive; injection-prone
// punctuation does not.
func isUnsafeRune(r rune) bool {
	switch r {
	case ';', '`', '$', '<', '>', '{', '}', '[', ']', '\\', '\x00':
		return true
	}
	return false
}

// ExtractFeatures computes the surface features of a normalized query.
func ExtractFeatures(normalized string) Features {
	words := strings.Fields(normalized)
	f := Features{
		WordCount: len(words),
		HasQuotes: strings.Count(normalized, `"`) >= 2,
	}

	var totalLen int
	for i, word := range words {
		totalLen += len(word)

		if booleanOperators[word] {
			f.HasBooleanOperators = true
		}
		if strings.ContainsAny(word, "*?") {
			f.HasWildcards = true
		}
		if containsDigit(word) {
			f.HasNumbers = true
		}

		lower := strings.ToLower(strings.Trim(word, `"'.,!?`))
		if stopWords[lower] {
			f.HasStopwords = true
		}
		if i == 0 && questionWords[lower] {
			f.HasQuestionWords = true
		}
	}
	if strings.Contains(normalized, "&&") || strings.Contains(normalized, "||") {
		f.HasBooleanOperators = true
	}
	if len(words) > 0 {
		f.AvgWordLength = float64(totalLen) / float64(len(words))
	}

	return f
}

// Classify determines the query type from its features. Checks run in
// strict priority order; the first match wins.
func Classify(normalized string, f Features) QueryType {
	switch {
	case f.HasQuotes:
		return TypeExactPhrase
	case f.HasBooleanOperators:
		return TypeBoolean
	case f.HasWildcards:
		return TypeWildcard
	case f.HasQuestionWords:
		return TypeQuestion
	case f.HasNumbers && f.WordCount <= shortQueryMaxWords:
		return TypeNumeric
	case isEntityQuery(normalized, f):
		return TypeEntity
	case f.WordCount > 0 && f.WordCount <= shortQueryMaxWords:
		return TypeShortKeyword
	case f.WordCount > shortQueryMaxWords:
		return TypeLongPhrase
	default:
		return TypeUnknown
	}
}

// isEntityQuery reports whether the query looks like a named entity:
// at most two words, every word capitalized, none a stopword.
func isEntityQuery(normalized string, f Features) bool {
	words := strings.Fields(normalized)
	if len(words) == 0 || len(words) > entityMaxWords {
		return false
	}
	for _, word := range words {
		runes := []rune(word)
		if !unicode.IsUpper(runes[0]) {
			return false
		}
		if stopWords[strings.ToLower(word)] {
			return false
		}
	}
	return true
}

// Confidence scores how certain the classification is. Each strong
// signal adds a fixed increment over the base; the result is clamped.
func Confidence(qt QueryType, f Features) float64 {
	c := confBase

	switch qt {
	case TypeExactPhrase:
		c += confQuoted
	case TypeBoolean:
		c += confBoolean
	case TypeWildcard:
		c += confWildcard
	case TypeQuestion:
		c += confQuestion
	}

	switch {
	case f.WordCount > 0 && f.WordCount <= shortQueryMaxWords:
		c += confShortQuery
	case f.WordCount > shortQueryMaxWords:
		c += confLongQuery
	}

	if c < confMin {
		c = confMin
	}
	if c > confMax {
		c = confMax
	}
	return c
}

// EstimateComplexity grades query cost from its features.
func EstimateComplexity(f Features) string {
	score := 0
	if f.WordCount > shortQueryMaxWords {
		score++
	}
	if f.WordCount > 8 {
		score++
	}
	if f.HasBooleanOperators {
		score += 2
	}
	if f.HasWildcards {
		score++
	}
	if f.HasQuotes {
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

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// IsStopword reports whether the lowercased word is a stopword.
func IsStopword(word string) bool {
	return stopWords[strings.ToLower(word)]
}
