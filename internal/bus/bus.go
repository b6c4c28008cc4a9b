// Package bus provides event bus implementations for decoupled
// communication between the pipeline components.
package bus

import (
	"context"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Request sends a request and waits for a correlated response.
	Request(ctx context.Context, topic string, req Event) (Event, error)

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "embedding.request").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links related events (e.g., request/response).
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Topics for different event types.
const (
	// Embedding topics.
	TopicEmbedRequest  = "embedding.request"
	TopicEmbedResponse = "embedding.response"

	// Queue topics.
	TopicQueueProcessed = "queue.batch.processed"

	// Ingest topics.
	TopicDocumentIngested = "document.ingested"
	TopicDocumentRemoved  = "document.removed"

	// Collection topics.
	TopicCollectionCreated = "collection.created"
	TopicCollectionUpdated = "collection.updated"

	// Search topics.
	TopicSearchPerformed  = "search.performed"
	TopicFeedbackReceived = "search.feedback"
)
