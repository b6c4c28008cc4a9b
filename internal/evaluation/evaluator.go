package evaluation

import (
	"context"
	"encoding/json"
	"io"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/search"
)

// Judgment grades one query-document pair. Grades run 0 (not
// relevant) to 3 (highly relevant).
type Judgment struct {
	QueryID    string `json:"query_id"`
	DocumentID string `json:"document_id"`
	Relevance  int    `json:"relevance"`
}

// Query is one labeled evaluation query.
type Query struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Collection string `json:"collection"`
}

// Suite is a set of labeled queries with their judgments.
type Suite struct {
	Queries   []Query    `json:"queries"`
	Judgments []Judgment `json:"judgments"`

	// Ks are the cutoffs to report; empty defaults to 1, 5, 10.
	Ks []int `json:"ks,omitempty"`
}

// LoadSuite decodes a suite from JSON.
func LoadSuite(r io.Reader) (*Suite, error) {
	var suite Suite
	if err := json.NewDecoder(r).Decode(&suite); err != nil {
		return nil, errors.Wrap(errors.KindValidation, "undecodable evaluation suite", err)
	}
	if len(suite.Queries) == 0 {
		return nil, errors.New(errors.KindValidation, "evaluation suite has no queries")
	}
	if len(suite.Ks) == 0 {
		suite.Ks = []int{1, 5, 10}
	}
	return &suite, nil
}

// QueryResult holds one query's quality metrics.
type QueryResult struct {
	QueryID     string          `json:"query_id"`
	Query       string          `json:"query"`
	NDCG        map[int]float64 `json:"ndcg"`
	Precision   map[int]float64 `json:"precision"`
	Recall      map[int]float64 `json:"recall"`
	RR          float64         `json:"rr"`
	AP          float64         `json:"ap"`
	ResultCount int             `json:"result_count"`
}

// Report aggregates quality metrics across a suite.
type Report struct {
	QueryCount    int             `json:"query_count"`
	MeanNDCG      map[int]float64 `json:"mean_ndcg"`
	MeanPrecision map[int]float64 `json:"mean_precision"`
	MeanRecall    map[int]float64 `json:"mean_recall"`
	MRR           float64         `json:"mrr"`
	MAP           float64         `json:"map"`
	PerQuery      []QueryResult   `json:"per_query,omitempty"`
}

// Evaluator runs labeled queries through a search service.
type Evaluator struct {
	svc       *search.Service
	judgments map[string]map[string]int
	limit     int
}

// NewEvaluator creates an evaluator over the given search service.
func NewEvaluator(svc *search.Service) *Evaluator {
	return &Evaluator{
		svc:       svc,
		judgments: make(map[string]map[string]int),
		limit:     100,
	}
}

func (e *Evaluator) loadJudgments(judgments []Judgment) {
	for _, j := range judgments {
		if e.judgments[j.QueryID] == nil {
			e.judgments[j.QueryID] = make(map[string]int)
		}
		e.judgments[j.QueryID][j.DocumentID] = j.Relevance
	}
}

// Run evaluates every query in the suite against the live pipeline
// and aggregates the results.
func (e *Evaluator) Run(ctx context.Context, suite *Suite) (*Report, error) {
	e.loadJudgments(suite.Judgments)

	results := make([]QueryResult, 0, len(suite.Queries))
	for _, q := range suite.Queries {
		r, err := e.evaluateQuery(ctx, q, suite.Ks)
		if err != nil {
			return nil, errors.Wrap(errors.KindOf(err), "evaluation query failed", err).
				WithContext("query_id", q.ID)
		}
		results = append(results, *r)
	}

	return summarize(results, suite.Ks), nil
}

func (e *Evaluator) evaluateQuery(ctx context.Context, q Query, ks []int) (*QueryResult, error) {
	resp, err := e.svc.Search(ctx, search.Request{
		Query:      q.Text,
		Collection: q.Collection,
		Limit:      e.limit,
	})
	if err != nil {
		return nil, err
	}

	graded := e.judgments[q.ID]
	relevances := make([]int, len(resp.Results))
	for i, r := range resp.Results {
		relevances[i] = graded[r.ID]
	}

	result := &QueryResult{
		QueryID:     q.ID,
		Query:       q.Text,
		NDCG:        make(map[int]float64, len(ks)),
		Precision:   make(map[int]float64, len(ks)),
		Recall:      make(map[int]float64, len(ks)),
		RR:          ReciprocalRank(relevances),
		AP:          AveragePrecision(relevances),
		ResultCount: len(resp.Results),
	}
	for _, k := range ks {
		result.NDCG[k] = NDCG(relevances, k)
		result.Precision[k] = Precision(relevances, k)
		result.Recall[k] = Recall(relevances, k)
	}
	return result, nil
}

func summarize(results []QueryResult, ks []int) *Report {
	report := &Report{
		QueryCount:    len(results),
		MeanNDCG:      make(map[int]float64, len(ks)),
		MeanPrecision: make(map[int]float64, len(ks)),
		MeanRecall:    make(map[int]float64, len(ks)),
		PerQuery:      results,
	}
	if len(results) == 0 {
		return report
	}

	for _, r := range results {
		report.MRR += r.RR
		report.MAP += r.AP
		for _, k := range ks {
			report.MeanNDCG[k] += r.NDCG[k]
			report.MeanPrecision[k] += r.Precision[k]
			report.MeanRecall[k] += r.Recall[k]
		}
	}

	n := float64(len(results))
	report.MRR /= n
	report.MAP /= n
	for _, k := range ks {
		report.MeanNDCG[k] /= n
		report.MeanPrecision[k] /= n
		report.MeanRecall[k] /= n
	}
	return report
}
