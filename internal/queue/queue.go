package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/storage"
)

// GenerateFunc produces the embedding vector for one queue item.
type GenerateFunc func(ctx context.Context, item Item) ([]float32, error)

// Queue is the durable embedding work queue. Items are dequeued by
// priority, then age; every status change is a single-row update.
type Queue struct {
	engine storage.Engine
	cfg    config.QueueConfig
	log    *logger.Logger
}

// New creates a queue over the storage engine.
func New(engine storage.Engine, cfg config.QueueConfig, log *logger.Logger) *Queue {
	return &Queue{
		engine: engine,
		cfg:    cfg,
		log:    log.WithComponent("queue"),
	}
}

// Enqueue adds or refreshes embedding work for a document. Enqueueing
// the same (collection, document) again replaces the text and priority
// and resets the item to pending.
func (q *Queue) Enqueue(ctx context.Context, collection, documentID, text string, priority int) error {
	if collection == "" || documentID == "" {
		return errors.New(errors.KindValidation, "collection and document id are required")
	}
	if text == "" {
		return errors.New(errors.KindValidation, "queue item text must not be empty").
			WithContext("document_id", documentID)
	}

	err := q.engine.Exec(ctx, `
		INSERT INTO embedding_queue
			(collection, document_id, text_content, priority, status, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (collection, document_id) DO UPDATE SET
			text_content = excluded.text_content,
			priority = excluded.priority,
			status = excluded.status,
			retry_count = 0,
			error_message = NULL`,
		collection, documentID, text, priority, StatusPending, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(errors.KindPersistence, "enqueue failed", err).
			WithContext("collection", collection).
			WithContext("document_id", documentID)
	}
	return nil
}

// ProcessQueue dequeues up to a batch of pending items and runs the
// generation callback on each. A single item's failure never aborts
// the batch.
func (q *Queue) ProcessQueue(ctx context.Context, opts ProcessOptions, generate GenerateFunc) (*ProcessResult, error) {
	if generate == nil {
		return nil, errors.New(errors.KindValidation, "a generation callback is required")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = q.cfg.BatchSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.cfg.MaxRetries
	}

	items, err := q.dequeue(ctx, opts.Collection, batchSize)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{}
	var mu sync.Mutex

	workers := q.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			itemErr := q.processItem(gctx, item, maxRetries, generate)

			mu.Lock()
			defer mu.Unlock()
			if itemErr == nil {
				result.Processed++
				return nil
			}
			result.Failed++
			result.Errors = append(result.Errors, *itemErr)
			return nil
		})
	}
	_ = g.Wait()

	remaining, err := q.countPending(ctx, opts.Collection)
	if err != nil {
		return nil, err
	}
	result.RemainingInQueue = remaining

	q.log.Info("processed queue batch",
		"collection", opts.Collection,
		"processed", result.Processed,
		"failed", result.Failed,
		"remaining", result.RemainingInQueue,
	)
	return result, nil
}

// processItem runs one item through processing and records its
// terminal or retry state. Returns nil on success.
func (q *Queue) processItem(ctx context.Context, item Item, maxRetries int, generate GenerateFunc) *ItemError {
	if err := q.markProcessing(ctx, item.ID); err != nil {
		return &ItemError{DocumentID: item.DocumentID, Message: err.Error()}
	}

	vector, err := generate(ctx, item)
	if err == nil {
		err = q.engine.StoreVector(ctx, item.Collection, item.DocumentID, vector)
	}
	if err == nil {
		if markErr := q.markCompleted(ctx, item.ID); markErr != nil {
			return &ItemError{DocumentID: item.DocumentID, Message: markErr.Error()}
		}
		return nil
	}

	willRetry := retryableItemError(err) && item.RetryCount+1 < maxRetries
	if markErr := q.markFailed(ctx, item.ID, err.Error(), willRetry); markErr != nil {
		q.log.Error("failed to record item failure", "document_id", item.DocumentID, "error", markErr.Error())
	}
	return &ItemError{
		DocumentID: item.DocumentID,
		Message:    err.Error(),
		WillRetry:  willRetry,
	}
}

// retryableItemError decides whether a generation failure is worth
// another attempt. Validation, configuration and authentication
// failures are terminal; anything else gets retried while budget
// remains.
func retryableItemError(err error) bool {
	switch errors.KindOf(err) {
	case errors.KindValidation, errors.KindConfiguration, errors.KindAuthentication:
		return false
	}
	return true
}

func (q *Queue) dequeue(ctx context.Context, collection string, batchSize int) ([]Item, error) {
	query := `
		SELECT id, collection, document_id, text_content, priority, retry_count, created_at
		FROM embedding_queue
		WHERE status = ?`
	args := []any{StatusPending}
	if collection != "" {
		query += ` AND collection = ?`
		args = append(args, collection)
	}
	query += ` ORDER BY priority DESC, created_at ASC LIMIT ?`
	args = append(args, batchSize)

	rows, err := q.engine.Select(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "dequeue failed", err)
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{
			ID:         asInt64(row["id"]),
			Collection: asString(row["collection"]),
			DocumentID: asString(row["document_id"]),
			Text:       asString(row["text_content"]),
			Priority:   int(asInt64(row["priority"])),
			Status:     StatusPending,
			RetryCount: int(asInt64(row["retry_count"])),
			CreatedAt:  time.UnixMilli(asInt64(row["created_at"])),
		})
	}
	return items, nil
}

func (q *Queue) markProcessing(ctx context.Context, id int64) error {
	return q.engine.Exec(ctx, `
		UPDATE embedding_queue SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		StatusProcessing, time.Now().UnixMilli(), id, StatusPending)
}

func (q *Queue) markCompleted(ctx context.Context, id int64) error {
	now := time.Now().UnixMilli()
	return q.engine.Exec(ctx, `
		UPDATE embedding_queue
		SET status = ?, completed_at = ?, processed_at = ?, error_message = NULL
		WHERE id = ?`,
		StatusCompleted, now, now, id)
}

// markFailed requeues the item with an incremented retry count, or
// parks it as failed once the retry budget is spent.
func (q *Queue) markFailed(ctx context.Context, id int64, message string, willRetry bool) error {
	status := StatusFailed
	if willRetry {
		status = StatusPending
	}
	return q.engine.Exec(ctx, `
		UPDATE embedding_queue
		SET status = ?, retry_count = retry_count + 1, error_message = ?, processed_at = ?
		WHERE id = ?`,
		status, message, time.Now().UnixMilli(), id)
}

func (q *Queue) countPending(ctx context.Context, collection string) (int, error) {
	query := `SELECT COUNT(*) AS n FROM embedding_queue WHERE status = ?`
	args := []any{StatusPending}
	if collection != "" {
		query += ` AND collection = ?`
		args = append(args, collection)
	}
	rows, err := q.engine.Select(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(errors.KindPersistence, "pending count failed", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(asInt64(rows[0]["n"])), nil
}

// GetStatus aggregates per-status counts and the mean processing
// latency of completed items.
func (q *Queue) GetStatus(ctx context.Context, collection string) (*StatusReport, error) {
	query := `SELECT status, COUNT(*) AS n FROM embedding_queue`
	var args []any
	if collection != "" {
		query += ` WHERE collection = ?`
		args = append(args, collection)
	}
	query += ` GROUP BY status`

	rows, err := q.engine.Select(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "status aggregation failed", err)
	}

	report := &StatusReport{}
	for _, row := range rows {
		n := int(asInt64(row["n"]))
		switch Status(asString(row["status"])) {
		case StatusPending:
			report.Pending = n
		case StatusProcessing:
			report.Processing = n
		case StatusCompleted:
			report.Completed = n
		case StatusFailed:
			report.Failed = n
		}
	}

	query = `
		SELECT started_at, completed_at FROM embedding_queue
		WHERE status = ? AND started_at IS NOT NULL AND completed_at IS NOT NULL`
	args = []any{StatusCompleted}
	if collection != "" {
		query += ` AND collection = ?`
		args = append(args, collection)
	}
	timings, err := q.engine.Select(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "timing aggregation failed", err)
	}
	if len(timings) > 0 {
		var totalMs int64
		for _, row := range timings {
			totalMs += asInt64(row["completed_at"]) - asInt64(row["started_at"])
		}
		report.AvgProcessingTime = time.Duration(totalMs/int64(len(timings))) * time.Millisecond
	}

	return report, nil
}

// ClearQueue deletes matching rows and reports how many were removed.
func (q *Queue) ClearQueue(ctx context.Context, filter ClearFilter) (int, error) {
	where := ""
	var args []any
	appendCond := func(cond string, arg any) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, arg)
	}
	if filter.Collection != "" {
		appendCond("collection = ?", filter.Collection)
	}
	if filter.Status != "" {
		appendCond("status = ?", filter.Status)
	}

	rows, err := q.engine.Select(ctx, "SELECT COUNT(*) AS n FROM embedding_queue"+where, args...)
	if err != nil {
		return 0, errors.Wrap(errors.KindPersistence, "clear count failed", err)
	}
	count := 0
	if len(rows) > 0 {
		count = int(asInt64(rows[0]["n"]))
	}

	if err := q.engine.Exec(ctx, "DELETE FROM embedding_queue"+where, args...); err != nil {
		return 0, errors.Wrap(errors.KindPersistence, "clear failed", err)
	}
	return count, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
