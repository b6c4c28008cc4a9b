// Package result defines the result shapes flowing through the search
// pipeline: raw rows from storage, ranked results from the processor,
// and optimized results from the optimizer.
package result

import "time"

// Source tags which signal produced a raw result.
type Source string

const (
	SourceFts    Source = "fts"
	SourceVector Source = "vector"
	SourceFused  Source = "fused"
)

// Raw is a result row as the storage engine returns it.
type Raw struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
	Source   Source            `json:"source"`

	// UpdatedAt feeds the freshness signal when present.
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// ScoreComponent is one named, weighted term of a final score.
type ScoreComponent struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Value    float64 `json:"value"`
	Weighted float64 `json:"weighted"`
}

// Ranked is a processed result with normalized and composite scores.
type Ranked struct {
	Raw

	NormalizedScore float64          `json:"normalized_score"`
	Snippets        []string         `json:"snippets,omitempty"`
	Highlights      []string         `json:"highlights,omitempty"`
	DiversityScore  float64          `json:"diversity_score"`
	ContextScore    float64          `json:"context_score"`
	QualityScore    float64          `json:"quality_score"`
	FinalScore      float64          `json:"final_score"`
	Rank            int              `json:"rank"`
	Explanation     []ScoreComponent `json:"explanation,omitempty"`
}

// Optimized is a ranked result after model re-ranking,
// diversification and personalization.
type Optimized struct {
	Ranked

	ModelScore           float64 `json:"model_score"`
	DiversityGroup       string  `json:"diversity_group,omitempty"`
	PersonalizationBoost float64 `json:"personalization_boost"`
	OriginalRank         int     `json:"original_rank"`
	RankDelta            int     `json:"rank_delta"`
}
