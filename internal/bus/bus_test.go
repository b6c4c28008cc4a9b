package bus

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	var got atomic.Int32
	err := b.Subscribe(ctx, TopicDocumentIngested, func(ctx context.Context, e Event) error {
		got.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Publish(ctx, TopicDocumentIngested, Event{ID: "e1", Type: TopicDocumentIngested}); err != nil {
		t.Fatal(err)
	}
	if !b.Drain(time.Second) {
		t.Fatal("handlers did not drain")
	}
	if got.Load() != 1 {
		t.Fatalf("deliveries = %d, want 1", got.Load())
	}
}

func TestMemoryBusPublishNoSubscribers(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	if err := b.Publish(context.Background(), "nobody.listens", Event{ID: "e1"}); err != nil {
		t.Fatalf("publish without subscribers should be a no-op, got %v", err)
	}
}

func TestMemoryBusInFlightBound(t *testing.T) {
	b := NewMemoryBus(WithMaxInFlight(2))
	defer b.Close()
	ctx := context.Background()

	block := make(chan struct{})
	started := make(chan struct{}, 4)
	err := b.Subscribe(ctx, "slow.topic", func(ctx context.Context, e Event) error {
		started <- struct{}{}
		<-block
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Two publishes occupy both slots.
	if err := b.Publish(ctx, "slow.topic", Event{ID: "e1"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Publish(ctx, "slow.topic", Event{ID: "e2"}); err != nil {
		t.Fatal(err)
	}
	<-started
	<-started

	// The third must fail fast rather than queue.
	err = b.Publish(ctx, "slow.topic", Event{ID: "e3"})
	if errors.KindOf(err) != errors.KindRateLimit {
		t.Fatalf("kind = %v, want rate_limit", errors.KindOf(err))
	}

	close(block)
	if !b.Drain(time.Second) {
		t.Fatal("handlers did not drain")
	}

	// Slots freed: publishing works again.
	if err := b.Publish(ctx, "slow.topic", Event{ID: "e4"}); err != nil {
		t.Fatalf("publish after drain failed: %v", err)
	}
	b.Drain(time.Second)
}

func TestMemoryBusRequestResponse(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	err := b.Subscribe(ctx, TopicEmbedRequest, func(ctx context.Context, e Event) error {
		return b.Respond(e.CorrelationID, Event{
			ID:            "resp-1",
			Type:          TopicEmbedResponse,
			CorrelationID: e.CorrelationID,
			Payload:       "done",
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := b.Request(ctx, TopicEmbedRequest, Event{ID: "req-1", CorrelationID: "corr-1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Payload != "done" {
		t.Fatalf("payload = %v, want done", resp.Payload)
	}
}

func TestMemoryBusRequestNeedsCorrelationID(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	_, err := b.Request(context.Background(), TopicEmbedRequest, Event{ID: "req"})
	if errors.KindOf(err) != errors.KindValidation {
		t.Fatalf("kind = %v, want validation", errors.KindOf(err))
	}
}

func TestMemoryBusRequestTimeout(t *testing.T) {
	b := NewMemoryBus(WithRequestTimeout(50 * time.Millisecond))
	defer b.Close()

	start := time.Now()
	_, err := b.Request(context.Background(), "silent.topic", Event{ID: "req", CorrelationID: "c1"})
	if errors.KindOf(err) != errors.KindTimeout {
		t.Fatalf("kind = %v, want timeout", errors.KindOf(err))
	}
	if time.Since(start) > time.Second {
		t.Fatal("timeout took far longer than configured")
	}
}

func TestMemoryBusLateResponseDiscarded(t *testing.T) {
	b := NewMemoryBus(WithRequestTimeout(20 * time.Millisecond))
	defer b.Close()

	_, err := b.Request(context.Background(), "silent.topic", Event{ID: "req", CorrelationID: "late-1"})
	if errors.KindOf(err) != errors.KindTimeout {
		t.Fatalf("kind = %v, want timeout", errors.KindOf(err))
	}

	// The requester is gone; the response must be dropped, not error.
	if err := b.Respond("late-1", Event{ID: "resp"}); err != nil {
		t.Fatalf("late response should be discarded silently, got %v", err)
	}
}

func TestMemoryBusClosedRejectsOperations(t *testing.T) {
	b := NewMemoryBus()
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := b.Publish(ctx, "t", Event{}); err == nil {
		t.Fatal("publish on closed bus should fail")
	}
	if err := b.Subscribe(ctx, "t", func(context.Context, Event) error { return nil }); err == nil {
		t.Fatal("subscribe on closed bus should fail")
	}
	if _, err := b.Request(ctx, "t", Event{CorrelationID: "c"}); err == nil {
		t.Fatal("request on closed bus should fail")
	}
}

func TestFactoryMemory(t *testing.T) {
	b, err := NewBus(busConfig("memory"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, ok := b.(*MemoryBus); !ok {
		t.Fatalf("expected a memory bus, got %T", b)
	}
}

func TestFactoryJournaledBus(t *testing.T) {
	cfg := busConfig("memory")
	cfg.JournalPath = t.TempDir() + "/events.jsonl"

	b, err := NewBus(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, ok := b.(*JournaledBus); !ok {
		t.Fatalf("expected a journaled bus, got %T", b)
	}
}

func TestFactoryKafkaRequiresBrokers(t *testing.T) {
	cfg := busConfig("kafka")
	cfg.KafkaBrokers = ""
	if _, err := NewBus(cfg); errors.KindOf(err) != errors.KindConfiguration {
		t.Fatalf("expected configuration error for missing brokers")
	}
}

func TestFactoryUnknownType(t *testing.T) {
	if _, err := NewBus(busConfig("carrier-pigeon")); errors.KindOf(err) != errors.KindConfiguration {
		t.Fatal("expected configuration error for unknown type")
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	brokers := ParseKafkaBrokers(" a:9092 , b:9092 ")
	if len(brokers) != 2 || brokers[0] != "a:9092" || brokers[1] != "b:9092" {
		t.Fatalf("brokers = %v", brokers)
	}
	if ParseKafkaBrokers("") != nil {
		t.Fatal("empty broker string should parse to nil")
	}
}

func TestJournalRecordAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	journal, err := NewJournal(path, true)
	if err != nil {
		t.Fatal(err)
	}

	inner := NewMemoryBus()
	b := NewJournaledBus(inner, journal)
	ctx := context.Background()

	var delivered atomic.Int32
	if err := inner.Subscribe(ctx, TopicSearchPerformed, func(ctx context.Context, e Event) error {
		delivered.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := b.Publish(ctx, TopicSearchPerformed, Event{ID: "e1", Type: TopicSearchPerformed}); err != nil {
		t.Fatal(err)
	}
	inner.Drain(time.Second)

	events, err := journal.Events(time.Time{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Event.ID != "e1" {
		t.Fatalf("journal = %+v, want the published event", events)
	}

	if err := journal.Replay(ctx, inner, time.Time{}); err != nil {
		t.Fatal(err)
	}
	inner.Drain(time.Second)
	if delivered.Load() != 2 {
		t.Fatalf("deliveries = %d, want 2 after replay", delivered.Load())
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestJournalDisabledIsNoop(t *testing.T) {
	journal, err := NewJournal("", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := journal.Record("t", Event{ID: "e"}); err != nil {
		t.Fatalf("disabled journal should drop writes, got %v", err)
	}
	if _, err := journal.Events(time.Time{}, 0); err == nil {
		t.Fatal("reading a disabled journal should fail")
	}
}

func busConfig(busType string) config.BusConfig {
	return config.BusConfig{Type: busType, KafkaBrokers: "localhost:9092", MaxInFlight: 10}
}
