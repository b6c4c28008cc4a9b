package fusion

import (
	"fmt"
	"strings"
)

// VectorCandidate is one vector-search hit fed into the fused SQL as
// an inline table.
type VectorCandidate struct {
	DocID    string
	Rank     int // 1-based
	Distance float64
}

// BuildFTSQuery builds the lexical-only query. FTS5 bm25() returns
// negative scores for matches (lower is better), so the score is
// negated: better matches score higher and matches stay non-negative.
func BuildFTSQuery(collection, matchExpr string, limit, offset int) (string, []any) {
	query := `
		SELECT d.id, d.title, d.content, d.metadata, d.updated_at,
		       -bm25(documents_fts) AS score
		FROM documents_fts
		JOIN documents d ON d.collection = documents_fts.collection AND d.id = documents_fts.doc_id
		WHERE documents_fts MATCH ? AND documents_fts.collection = ?
		ORDER BY score DESC
		LIMIT ? OFFSET ?`
	return query, []any{matchExpr, collection, limit, offset}
}

// BuildHybridRRF builds the reciprocal-rank fused query. The vector
// candidates arrive as an inline VALUES table; a result present in
// only one leg gets zero contribution from the other via the outer
// join and COALESCE.
func BuildHybridRRF(collection, matchExpr string, vec []VectorCandidate, k, candidates, limit, offset int) (string, []any) {
	if k <= 0 {
		k = DefaultK
	}
	values, vecArgs := vectorValues(vec)

	query := fmt.Sprintf(`
		WITH fts AS (
			SELECT doc_id, ROW_NUMBER() OVER (ORDER BY bm25(documents_fts)) AS pos
			FROM documents_fts
			WHERE documents_fts MATCH ? AND collection = ?
			LIMIT ?
		),
		vec (doc_id, pos, distance) AS (VALUES %s)
		SELECT d.id, d.title, d.content, d.metadata, d.updated_at,
		       COALESCE(1.0 / (? + fts.pos), 0) + COALESCE(1.0 / (? + vec.pos), 0) AS score
		FROM fts
		FULL OUTER JOIN vec ON vec.doc_id = fts.doc_id
		JOIN documents d ON d.collection = ? AND d.id = COALESCE(fts.doc_id, vec.doc_id)
		ORDER BY score DESC
		LIMIT ? OFFSET ?`, values)

	args := []any{matchExpr, collection, candidates}
	args = append(args, vecArgs...)
	args = append(args, k, k, collection, limit, offset)
	return query, args
}

// BuildHybridWeighted builds the weighted fused query:
// wFts·(−fts_score) + wVec·(1/(1+vec_distance)).
func BuildHybridWeighted(collection, matchExpr string, vec []VectorCandidate, w Weights, candidates, limit, offset int) (string, []any) {
	values, vecArgs := vectorValues(vec)

	query := fmt.Sprintf(`
		WITH fts AS (
			SELECT doc_id, bm25(documents_fts) AS score
			FROM documents_fts
			WHERE documents_fts MATCH ? AND collection = ?
			LIMIT ?
		),
		vec (doc_id, pos, distance) AS (VALUES %s)
		SELECT d.id, d.title, d.content, d.metadata, d.updated_at,
		       COALESCE(? * -fts.score, 0) + COALESCE(? * (1.0 / (1.0 + vec.distance)), 0) AS score
		FROM fts
		FULL OUTER JOIN vec ON vec.doc_id = fts.doc_id
		JOIN documents d ON d.collection = ? AND d.id = COALESCE(fts.doc_id, vec.doc_id)
		ORDER BY score DESC
		LIMIT ? OFFSET ?`, values)

	args := []any{matchExpr, collection, candidates}
	args = append(args, vecArgs...)
	args = append(args, w.Fts, w.Vector, collection, limit, offset)
	return query, args
}

// vectorValues renders the inline VALUES table for vector candidates.
// An empty candidate list still needs one row to keep the SQL valid;
// the impossible doc id joins to nothing.
func vectorValues(vec []VectorCandidate) (string, []any) {
	if len(vec) == 0 {
		return "('', 0, 0)", nil
	}

	placeholders := make([]string, len(vec))
	args := make([]any, 0, len(vec)*3)
	for i, c := range vec {
		placeholders[i] = "(?, ?, ?)"
		args = append(args, c.DocID, c.Rank, c.Distance)
	}
	return strings.Join(placeholders, ", "), args
}
