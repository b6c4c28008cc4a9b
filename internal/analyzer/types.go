// Package analyzer provides query understanding for the search pipeline.
package analyzer

import (
	"strings"

	"github.com/sablesearch/sable-search/internal/pkg/hash"
)

// QueryType classifies the shape of a query.
type QueryType string

const (
	// TypeExactPhrase - the query contains a double-quoted phrase.
	TypeExactPhrase QueryType = "exact_phrase"

	// TypeBoolean - the query uses boolean operators.
	TypeBoolean QueryType = "boolean"

	// TypeWildcard - the query contains wildcard characters.
	TypeWildcard QueryType = "wildcard"

	// TypeQuestion - the query starts with a question word.
	TypeQuestion QueryType = "question"

	// TypeNumeric - a short query dominated by numbers.
	TypeNumeric QueryType = "numeric"

	// TypeEntity - a short capitalized non-stopword query.
	TypeEntity QueryType = "entity"

	// TypeShortKeyword - up to three plain keywords.
	TypeShortKeyword QueryType = "short_keyword"

	// TypeLongPhrase - four or more words of free text.
	TypeLongPhrase QueryType = "long_phrase"

	// TypeUnknown - the query fits no known shape.
	TypeUnknown QueryType = "unknown"
)

// Intent represents what the user is trying to accomplish.
type Intent string

const (
	IntentSearch   Intent = "search"
	IntentFilter   Intent = "filter"
	IntentNavigate Intent = "navigate"
	IntentCompare  Intent = "compare"
	IntentDiscover Intent = "discover"
	IntentVerify   Intent = "verify"
)

// Features holds the surface features extracted from a query.
type Features struct {
	WordCount           int     `json:"word_count"`
	AvgWordLength       float64 `json:"avg_word_length"`
	HasBooleanOperators bool    `json:"has_boolean_operators"`
	HasWildcards        bool    `json:"has_wildcards"`
	HasQuotes           bool    `json:"has_quotes"`
	HasNumbers          bool    `json:"has_numbers"`
	HasQuestionWords    bool    `json:"has_question_words"`
	HasStopwords        bool    `json:"has_stopwords"`
}

// Analysis is the immutable result of analyzing one query.
type Analysis struct {
	// Original is the raw user query.
	Original string `json:"original"`

	// Normalized is the cleaned query used by all later stages.
	Normalized string `json:"normalized"`

	// Type is the detected query shape.
	Type QueryType `json:"type"`

	// Features are the extracted surface features.
	Features Features `json:"features"`

	// Confidence is how confident the classification is (0.1-1.0).
	Confidence float64 `json:"confidence"`

	// SuggestedStrategy is a capability-agnostic strategy hint; the
	// strategy engine makes the final call.
	SuggestedStrategy string `json:"suggested_strategy"`

	// AlternativeStrategies are ordered fallback hints.
	AlternativeStrategies []string `json:"alternative_strategies"`

	// Complexity estimates query cost (low, medium, high).
	Complexity string `json:"complexity"`

	// Intent is the detected user intent. Empty when intent
	// classification is disabled or degraded.
	Intent Intent `json:"intent,omitempty"`

	// Expansions are synonym and history expansions of query terms.
	Expansions []string `json:"expansions,omitempty"`

	// Entities are detected named entities and patterns.
	Entities []string `json:"entities,omitempty"`

	// Keywords are the top weighted terms.
	Keywords []string `json:"keywords,omitempty"`
}

// Context carries the per-request signals that shape analysis.
type Context struct {
	// UserID identifies the requesting user, if known.
	UserID string `json:"user_id,omitempty"`

	// Collection scopes the query to one collection.
	Collection string `json:"collection,omitempty"`

	// RecentQueries are the session's prior queries, newest last.
	RecentQueries []string `json:"recent_queries,omitempty"`

	// ClickedTerms are terms from recently clicked results.
	ClickedTerms []string `json:"clicked_terms,omitempty"`

	// Urgency is "high" when the caller needs the fastest answer.
	Urgency string `json:"urgency,omitempty"`

	// Specificity is "precise" or "broad".
	Specificity string `json:"specificity,omitempty"`

	// Domain names the topical domain, if known.
	Domain string `json:"domain,omitempty"`

	// Temporality is "recent" when fresh results are preferred.
	Temporality string `json:"temporality,omitempty"`
}

// Fingerprint derives a stable cache-key component from the context
// signals that influence analysis.
func (c *Context) Fingerprint() string {
	if c == nil {
		return ""
	}
	parts := []string{
		c.Collection,
		c.Urgency,
		c.Specificity,
		c.Domain,
		c.Temporality,
		strings.Join(c.RecentQueries, "|"),
	}
	return hash.SHA256Short([]byte(strings.Join(parts, "\x1f")), 16)
}
