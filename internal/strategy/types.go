// Package strategy maps query analyses to executable search plans.
package strategy

import (
	"time"

	"github.com/sablesearch/sable-search/internal/analyzer"
)

// Strategy names an execution approach for a query.
type Strategy string

const (
	StrategyExactMatch Strategy = "exact_match"
	StrategyKeyword    Strategy = "keyword"
	StrategyPhrase     Strategy = "phrase"
	StrategyFuzzy      Strategy = "fuzzy"
	StrategyBoolean    Strategy = "boolean"
	StrategySemantic   Strategy = "semantic"
)

// FusionMethod selects how lexical and vector signals combine.
type FusionMethod string

const (
	FusionRRF      FusionMethod = "rrf"
	FusionWeighted FusionMethod = "weighted"
)

// Normalization selects the score normalization applied downstream.
type Normalization string

const (
	NormMinMax Normalization = "minmax"
	NormZScore Normalization = "zscore"
	NormNone   Normalization = "none"
)

// FusionWeights are the tunable signal weights of an execution plan.
type FusionWeights struct {
	Fts         float64 `json:"fts"`
	Vector      float64 `json:"vector"`
	ExactMatch  float64 `json:"exact_match"`
	PhraseMatch float64 `json:"phrase_match"`
	Proximity   float64 `json:"proximity"`
	Freshness   float64 `json:"freshness"`
	Popularity  float64 `json:"popularity"`
}

// ExecutionPlan is the consumable output of strategy selection.
type ExecutionPlan struct {
	// Primary is the chosen strategy.
	Primary Strategy `json:"primary"`

	// Fallbacks are ordered alternatives; keyword search is always
	// among them.
	Fallbacks []Strategy `json:"fallbacks"`

	// Fusion is how lexical and vector scores merge.
	Fusion FusionMethod `json:"fusion"`

	// Weights are the fusion weights after strategy adjustment and
	// caller overrides.
	Weights FusionWeights `json:"weights"`

	// Normalization applies before re-ranking.
	Normalization Normalization `json:"normalization"`

	// Filters restrict candidate documents by metadata equality.
	Filters map[string]string `json:"filters,omitempty"`

	// Limit and Offset paginate the final result list.
	Limit  int `json:"limit"`
	Offset int `json:"offset"`

	// MaxCandidates caps how many raw rows each signal may return.
	MaxCandidates int `json:"max_candidates"`

	// Timeout bounds plan execution.
	Timeout time.Duration `json:"timeout"`

	// Complexity is the estimated execution cost (low, medium, high).
	Complexity string `json:"complexity"`

	// Personalized is set when historical outcomes overrode the
	// table-driven choice.
	Personalized bool `json:"personalized,omitempty"`
}

// Options carries the per-request inputs to strategy selection beyond
// the analysis itself.
type Options struct {
	// EmbeddingsReady reports whether the target collection can serve
	// vector queries.
	EmbeddingsReady bool

	// CorpusSize is the approximate document count of the collection.
	CorpusSize int

	// Filters restrict candidates by metadata equality.
	Filters map[string]string

	// Limit and Offset paginate results. Zero values take the
	// configured defaults.
	Limit  int
	Offset int

	// Weights, when non-nil, replaces the computed fusion weights.
	Weights *FusionWeights

	// UserID enables outcome-history personalization when set.
	UserID string
}

// Outcome records whether a strategy served an intent well, feeding
// the personalization history.
type Outcome struct {
	UserID   string
	Intent   analyzer.Intent
	Strategy Strategy
	Success  bool
}
