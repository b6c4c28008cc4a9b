package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
)

// JournaledEvent is one event as written to the journal.
type JournaledEvent struct {
	Event     Event     `json:"event"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal appends published events to disk as JSON lines, for debugging
// and replay.
type Journal struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	enabled bool
	encoder *json.Encoder
}

// NewJournal creates an event journal. A disabled journal accepts
// writes as no-ops.
func NewJournal(path string, enabled bool) (*Journal, error) {
	j := &Journal{path: path, enabled: enabled}
	if !enabled {
		return j, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "creating journal directory", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "opening journal file", err)
	}

	j.file = file
	j.encoder = json.NewEncoder(file)
	return j, nil
}

// Record appends one event. Disabled journals drop it.
func (j *Journal) Record(topic string, event Event) error {
	if !j.enabled {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New(errors.KindPersistence, "journal is closed")
	}

	entry := JournaledEvent{Event: event, Topic: topic, Timestamp: time.Now()}
	if err := j.encoder.Encode(entry); err != nil {
		return errors.Wrap(errors.KindPersistence, "encoding journal entry", err)
	}
	return nil
}

// Events reads journal entries newer than since, up to limit when
// limit is positive.
func (j *Journal) Events(since time.Time, limit int) ([]JournaledEvent, error) {
	if !j.enabled {
		return nil, errors.New(errors.KindConfiguration, "journaling is disabled")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournaledEvent{}, nil
		}
		return nil, errors.Wrap(errors.KindPersistence, "opening journal for read", err)
	}
	defer file.Close()

	var events []JournaledEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		var entry JournaledEvent
		if json.Unmarshal(scanner.Bytes(), &entry) != nil {
			continue
		}
		if entry.Timestamp.After(since) {
			events = append(events, entry)
			if limit > 0 && len(events) >= limit {
				break
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.KindPersistence, "scanning journal", err)
	}
	return events, nil
}

// Replay republishes journaled events newer than since, in order.
func (j *Journal) Replay(ctx context.Context, b Bus, since time.Time) error {
	events, err := j.Events(since, 0)
	if err != nil {
		return err
	}

	for _, entry := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Publish(ctx, entry.Topic, entry.Event); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	if !j.enabled {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		if err := j.file.Close(); err != nil {
			return errors.Wrap(errors.KindPersistence, "closing journal", err)
		}
		j.file = nil
		j.encoder = nil
	}
	return nil
}

// JournaledBus wraps another Bus and records every published event.
type JournaledBus struct {
	inner   Bus
	journal *Journal
}

// NewJournaledBus wraps a bus with journaling. Journal failures never
// block delivery.
func NewJournaledBus(inner Bus, journal *Journal) *JournaledBus {
	return &JournaledBus{inner: inner, journal: journal}
}

func (b *JournaledBus) Publish(ctx context.Context, topic string, event Event) error {
	_ = b.journal.Record(topic, event)
	return b.inner.Publish(ctx, topic, event)
}

func (b *JournaledBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

func (b *JournaledBus) Request(ctx context.Context, topic string, req Event) (Event, error) {
	_ = b.journal.Record(topic, req)
	resp, err := b.inner.Request(ctx, topic, req)
	if err == nil {
		_ = b.journal.Record(topic+".response", resp)
	}
	return resp, err
}

func (b *JournaledBus) Close() error {
	if err := b.journal.Close(); err != nil {
		return err
	}
	return b.inner.Close()
}
