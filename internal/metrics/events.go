package metrics

import (
	"context"

	"github.com/sablesearch/sable-search/internal/bus"
)

// EventSubscriber feeds the metric set from bus events.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a subscriber over the given bus.
func NewEventSubscriber(metrics *Metrics, eventBus bus.Bus) *EventSubscriber {
	return &EventSubscriber{metrics: metrics, bus: eventBus}
}

// Subscribe attaches handlers for every metered topic.
func (es *EventSubscriber) Subscribe(ctx context.Context) error {
	subscriptions := map[string]bus.Handler{
		bus.TopicSearchPerformed:  es.handleSearchPerformed,
		bus.TopicFeedbackReceived: es.handleFeedback,
		bus.TopicDocumentIngested: es.handleDocumentIngested,
		bus.TopicDocumentRemoved:  es.handleDocumentRemoved,
		bus.TopicQueueProcessed:   es.handleQueueProcessed,
	}
	for topic, handler := range subscriptions {
		if err := es.bus.Subscribe(ctx, topic, handler); err != nil {
			return err
		}
	}
	return nil
}

func (es *EventSubscriber) handleSearchPerformed(ctx context.Context, event bus.Event) error {
	latency, _ := payloadInt(event, "latency_ms")
	results, _ := payloadInt(event, "result_count")
	degraded := payloadBool(event, "degraded")
	errKind, _ := payloadString(event, "error_kind")
	es.metrics.RecordSearch(latency, int(results), degraded, errKind)
	return nil
}

func (es *EventSubscriber) handleFeedback(ctx context.Context, event bus.Event) error {
	es.metrics.FeedbackEvents.Inc()
	return nil
}

func (es *EventSubscriber) handleDocumentIngested(ctx context.Context, event bus.Event) error {
	es.metrics.IngestedDocuments.Inc()
	return nil
}

func (es *EventSubscriber) handleDocumentRemoved(ctx context.Context, event bus.Event) error {
	es.metrics.RemovedDocuments.Inc()
	return nil
}

func (es *EventSubscriber) handleQueueProcessed(ctx context.Context, event bus.Event) error {
	if n, ok := payloadInt(event, "processed"); ok {
		es.metrics.QueueProcessed.Add(n)
	}
	if n, ok := payloadInt(event, "failed"); ok {
		es.metrics.QueueFailed.Add(n)
	}
	if n, ok := payloadInt(event, "remaining"); ok {
		es.metrics.QueueDepth.Set(float64(n))
	}
	return nil
}

// Payload values arrive as native types from the memory bus and as
// json.Number-free decoded values (float64, string, bool) from Kafka.

func payloadInt(event bus.Event, key string) (int64, bool) {
	payload, ok := event.Payload.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func payloadString(event bus.Event, key string) (string, bool) {
	payload, ok := event.Payload.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := payload[key].(string)
	return s, ok
}

func payloadBool(event bus.Event, key string) bool {
	payload, ok := event.Payload.(map[string]any)
	if !ok {
		return false
	}
	b, _ := payload[key].(bool)
	return b
}
