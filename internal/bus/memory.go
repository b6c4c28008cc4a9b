package bus

import (
	"context"
	"sync"
	"time"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// defaultRequestTimeout bounds how long Request waits for a response.
const defaultRequestTimeout = 30 * time.Second

// defaultMaxInFlight bounds concurrent handler dispatches.
const defaultMaxInFlight = 10

// MemoryBus is an in-process event bus using Go channels.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	pending  map[string]chan Event
	closed   bool

	timeout time.Duration
	slots   chan struct{}

	inflightWg sync.WaitGroup
	log        *logger.Logger
}

// MemoryOption tunes a memory bus.
type MemoryOption func(*MemoryBus)

// WithRequestTimeout overrides the per-request timeout.
func WithRequestTimeout(d time.Duration) MemoryOption {
	return func(b *MemoryBus) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMaxInFlight overrides the in-flight dispatch bound.
func WithMaxInFlight(n int) MemoryOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.slots = make(chan struct{}, n)
		}
	}
}

// NewMemoryBus creates an in-memory event bus.
func NewMemoryBus(opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{
		handlers: make(map[string][]Handler),
		pending:  make(map[string]chan Event),
		timeout:  defaultRequestTimeout,
		slots:    make(chan struct{}, defaultMaxInFlight),
		log:      logger.Default().WithComponent("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish fans an event out to all subscribers of a topic. Dispatch is
// bounded: when every in-flight slot is taken the publish fails fast
// instead of queueing unboundedly.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.KindWorker, "bus is closed")
	}

	handlers := b.handlers[topic]
	if len(handlers) == 0 {
		return nil
	}

	for _, handler := range handlers {
		select {
		case b.slots <- struct{}{}:
		default:
			return errors.New(errors.KindRateLimit, "bus dispatch capacity exhausted").
				WithContext("topic", topic).
				WithContext("capacity", cap(b.slots))
		}

		b.inflightWg.Add(1)
		go func(h Handler) {
			defer func() {
				<-b.slots
				b.inflightWg.Done()
			}()
			if err := h(ctx, event); err != nil {
				b.log.Warn("handler failed", "topic", topic, "event_id", event.ID, "error", err.Error())
			}
		}(handler)
	}

	return nil
}

// Subscribe registers a handler for events on a topic.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.KindWorker, "bus is closed")
	}

	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Request publishes a request event and waits for the response carrying
// the same correlation id. Responses arriving after the wait ends are
// discarded.
func (b *MemoryBus) Request(ctx context.Context, topic string, req Event) (Event, error) {
	if req.CorrelationID == "" {
		return Event{}, errors.New(errors.KindValidation, "request needs a correlation id")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Event{}, errors.New(errors.KindWorker, "bus is closed")
	}
	responseChan := make(chan Event, 1)
	b.pending[req.CorrelationID] = responseChan
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.CorrelationID)
		b.mu.Unlock()
	}()

	if err := b.Publish(ctx, topic, req); err != nil {
		return Event{}, err
	}

	select {
	case <-ctx.Done():
		return Event{}, errors.Wrap(errors.KindTimeout, "request cancelled", ctx.Err()).
			WithContext("topic", topic)
	case <-time.After(b.timeout):
		return Event{}, errors.New(errors.KindTimeout, "request timed out").
			WithContext("topic", topic).
			WithContext("timeout", b.timeout.String())
	case resp := <-responseChan:
		return resp, nil
	}
}

// Respond delivers a response to a pending request. Responses with no
// pending request (the requester timed out) are silently dropped.
func (b *MemoryBus) Respond(correlationID string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.KindWorker, "bus is closed")
	}

	ch, ok := b.pending[correlationID]
	if !ok {
		b.log.Debug("dropping late response", "correlation_id", correlationID)
		return nil
	}

	select {
	case ch <- event:
	default:
		// A response already arrived; later ones lose.
	}
	return nil
}

// Close closes the bus, waiting briefly for in-flight handlers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inflightWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		b.log.Warn("drain timeout reached, some handlers may still be running")
	}

	b.mu.Lock()
	b.handlers = nil
	b.pending = nil
	b.mu.Unlock()

	return nil
}

// Drain waits for in-flight handlers to complete, up to the timeout.
func (b *MemoryBus) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.inflightWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
