// Package evaluation measures retrieval quality against labeled
// relevance judgments.
package evaluation

import (
	"math"
	"sort"
)

// relevantThreshold is the minimum grade counted as relevant for the
// binary metrics (precision, recall, MRR, AP).
const relevantThreshold = 1

// NDCG computes normalized discounted cumulative gain at k over
// graded relevances in ranked order.
func NDCG(relevances []int, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if k == 0 {
		return 0
	}

	ideal := append([]int(nil), relevances...)
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))

	dcg := dcgAt(relevances, k)
	idcg := dcgAt(ideal, k)
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func dcgAt(relevances []int, k int) float64 {
	total := float64(relevances[0])
	for i := 1; i < k; i++ {
		total += float64(relevances[i]) / math.Log2(float64(i+2))
	}
	return total
}

// Precision computes the relevant fraction of the top k.
func Precision(relevances []int, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	if k == 0 {
		return 0
	}
	relevant := 0
	for _, r := range relevances[:k] {
		if r >= relevantThreshold {
			relevant++
		}
	}
	return float64(relevant) / float64(k)
}

// Recall computes the fraction of all relevant documents found in the
// top k.
func Recall(relevances []int, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}

	total := 0
	for _, r := range relevances {
		if r >= relevantThreshold {
			total++
		}
	}
	if total == 0 {
		return 0
	}

	found := 0
	for _, r := range relevances[:k] {
		if r >= relevantThreshold {
			found++
		}
	}
	return float64(found) / float64(total)
}

// ReciprocalRank is 1/rank of the first relevant result, 0 when none.
func ReciprocalRank(relevances []int) float64 {
	for i, r := range relevances {
		if r >= relevantThreshold {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision averages precision at each relevant position.
func AveragePrecision(relevances []int) float64 {
	relevant := 0
	sum := 0.0
	for i, r := range relevances {
		if r >= relevantThreshold {
			relevant++
			sum += float64(relevant) / float64(i+1)
		}
	}
	if relevant == 0 {
		return 0
	}
	return sum / float64(relevant)
}
