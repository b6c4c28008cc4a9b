// Package queue implements the durable embedding work queue.
package queue

import "time"

// Status is a queue item's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one unit of embedding work.
type Item struct {
	ID          int64     `json:"id"`
	Collection  string    `json:"collection"`
	DocumentID  string    `json:"document_id"`
	Text        string    `json:"text"`
	Priority    int       `json:"priority"`
	Status      Status    `json:"status"`
	RetryCount  int       `json:"retry_count"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	ErrorMsg    string    `json:"error_message,omitempty"`
}

// ItemError records one item's failure within a batch.
type ItemError struct {
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
	WillRetry  bool   `json:"will_retry"`
}

// ProcessResult summarizes one ProcessQueue run.
type ProcessResult struct {
	Processed        int         `json:"processed"`
	Failed           int         `json:"failed"`
	RemainingInQueue int         `json:"remaining_in_queue"`
	Errors           []ItemError `json:"errors,omitempty"`
}

// ProcessOptions configure one ProcessQueue run. Zero values take the
// queue's configured defaults.
type ProcessOptions struct {
	// Collection restricts processing to one collection when set.
	Collection string

	// BatchSize caps how many items one run dequeues.
	BatchSize int

	// MaxRetries is how many attempts an item gets before failing
	// terminally.
	MaxRetries int
}

// StatusReport aggregates queue state.
type StatusReport struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	// AvgProcessingTime is the mean completed-item latency from
	// processing start to completion.
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
}

// ClearFilter selects queue rows for deletion. Zero fields match
// everything.
type ClearFilter struct {
	Collection string
	Status     Status
}
