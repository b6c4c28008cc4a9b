package optimizer

import (
	"math"
	"strings"
	"time"

	"github.com/sablesearch/sable-search/internal/search/result"
)

// FeatureCount is the fixed size of every feature vector.
const FeatureCount = 8

// Feature vector slots.
const (
	featFinalScore = iota
	featNormalizedScore
	featContentLength
	featTitleOverlap
	featContentOverlap
	featRankPosition
	featMetadataRichness
	featFreshness
)

// freshnessHalfLife controls how fast the freshness feature decays.
const freshnessHalfLife = 30 * 24 * time.Hour

// referenceContentLength is the content length mapped to a full
// content-length feature.
const referenceContentLength = 2000

// FeatureVector is the numeric representation of one result used by
// the model scorer and the MMD diversifier.
type FeatureVector [FeatureCount]float64

// extractFeatures computes a result's feature vector. A panic in
// extraction zeroes the vector rather than aborting the batch.
func extractFeatures(r *result.Ranked, queryTerms map[string]bool, now time.Time) (fv FeatureVector) {
	defer func() {
		if recover() != nil {
			fv = FeatureVector{}
		}
	}()

	fv[featFinalScore] = r.FinalScore
	fv[featNormalizedScore] = r.NormalizedScore
	fv[featContentLength] = math.Min(float64(len(r.Content))/referenceContentLength, 1.0)
	fv[featTitleOverlap] = overlapRatio(r.Title, queryTerms)
	fv[featContentOverlap] = overlapRatio(r.Content, queryTerms)
	fv[featRankPosition] = 1.0 / (1.0 + float64(r.Rank))
	fv[featMetadataRichness] = math.Min(float64(len(r.Metadata))/5.0, 1.0)
	fv[featFreshness] = freshness(r.UpdatedAt, now)
	return fv
}

// overlapRatio is the share of query terms present in the text.
func overlapRatio(text string, queryTerms map[string]bool) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `"'.,!?;:()`)
		if queryTerms[w] {
			present[w] = true
		}
	}
	return float64(len(present)) / float64(len(queryTerms))
}

// freshness decays exponentially with document age; unknown ages score
// zero.
func freshness(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() || updatedAt.After(now) {
		return 0
	}
	age := now.Sub(updatedAt)
	return math.Exp2(-float64(age) / float64(freshnessHalfLife))
}

// defaultModel is the deterministic placeholder scoring function used
// when no trained model is plugged in.
func defaultModel(fv FeatureVector) float64 {
	return 0.35*fv[featFinalScore] +
		0.15*fv[featNormalizedScore] +
		0.10*fv[featContentLength] +
		0.15*fv[featTitleOverlap] +
		0.10*fv[featContentOverlap] +
		0.05*fv[featRankPosition] +
		0.05*fv[featMetadataRichness] +
		0.05*fv[featFreshness]
}

// featureDistance is the euclidean distance between feature vectors,
// used by the MMD diversifier.
func featureDistance(a, b FeatureVector) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func queryTermSet(query string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'.,!?;:()`)
		if len(w) > 1 {
			set[w] = true
		}
	}
	return set
}
