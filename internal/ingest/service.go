// Package ingest registers documents in storage and feeds the
// embedding queue.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sablesearch/sable-search/internal/bus"
	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/hash"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/provider"
	"github.com/sablesearch/sable-search/internal/queue"
	"github.com/sablesearch/sable-search/internal/storage"
)

// Document is one unit of ingestable content.
type Document struct {
	// ID identifies the document within its collection. Empty IDs are
	// derived from the content.
	ID string `json:"id,omitempty"`

	// Title is the document title.
	Title string `json:"title"`

	// Content is the document body.
	Content string `json:"content"`

	// Metadata carries arbitrary string key-values.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Priority orders the document's embedding work; higher first.
	Priority int `json:"priority,omitempty"`
}

// BatchResult summarizes one batch ingestion.
type BatchResult struct {
	Ingested int         `json:"ingested"`
	Failed   int         `json:"failed"`
	Errors   []ItemError `json:"errors,omitempty"`
}

// ItemError records one document's ingestion failure.
type ItemError struct {
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
}

// Service registers documents and drives embedding generation.
type Service struct {
	engine    storage.Engine
	queue     *queue.Queue
	providers *provider.Manager
	events    bus.Bus
	cfg       config.Config
	log       *logger.Logger
}

// NewService creates an ingest service. The event bus is optional.
func NewService(engine storage.Engine, q *queue.Queue, providers *provider.Manager, events bus.Bus, cfg config.Config, log *logger.Logger) *Service {
	return &Service{
		engine:    engine,
		queue:     q,
		providers: providers,
		events:    events,
		cfg:       cfg,
		log:       log.WithComponent("ingest"),
	}
}

// Ingest registers one document: relational row, full-text row, and
// embedding work when the collection auto-generates vectors.
func (s *Service) Ingest(ctx context.Context, collection string, doc Document) (string, error) {
	if err := validateDocument(doc); err != nil {
		return "", err
	}

	info, err := s.engine.GetCollectionInfo(ctx, collection)
	if err != nil {
		return "", err
	}

	if doc.ID == "" {
		doc.ID = hash.SHA256Short([]byte(doc.Title+"\x1f"+doc.Content), 16)
	}

	metadata := "{}"
	if len(doc.Metadata) > 0 {
		data, err := json.Marshal(doc.Metadata)
		if err != nil {
			return "", errors.Wrap(errors.KindValidation, "unencodable metadata", err).
				WithContext("document_id", doc.ID)
		}
		metadata = string(data)
	}

	now := time.Now()
	err = s.engine.Exec(ctx, `
		INSERT INTO documents (collection, id, title, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		collection, doc.ID, doc.Title, doc.Content, metadata, now, now)
	if err != nil {
		return "", errors.Wrap(errors.KindPersistence, "document insert failed", err).
			WithContext("collection", collection).
			WithContext("document_id", doc.ID)
	}

	// The FTS table has no conflict target; replace the row by hand.
	if err := s.engine.Exec(ctx,
		`DELETE FROM documents_fts WHERE collection = ? AND doc_id = ?`, collection, doc.ID); err != nil {
		return "", errors.Wrap(errors.KindPersistence, "fts delete failed", err)
	}
	if err := s.engine.Exec(ctx,
		`INSERT INTO documents_fts (title, content, collection, doc_id) VALUES (?, ?, ?, ?)`,
		doc.Title, doc.Content, collection, doc.ID); err != nil {
		return "", errors.Wrap(errors.KindPersistence, "fts insert failed", err)
	}

	if info.Embedding.AutoGenerate {
		text := doc.Title + "\n\n" + doc.Content
		if err := s.queue.Enqueue(ctx, collection, doc.ID, text, doc.Priority); err != nil {
			return "", err
		}
	}

	s.publish(ctx, bus.TopicDocumentIngested, collection, doc.ID)
	return doc.ID, nil
}

// IngestBatch registers several documents. One document's failure does
// not abort the rest.
func (s *Service) IngestBatch(ctx context.Context, collection string, docs []Document) (*BatchResult, error) {
	if len(docs) == 0 {
		return nil, errors.New(errors.KindValidation, "batch is empty")
	}

	result := &BatchResult{}
	for _, doc := range docs {
		id, err := s.Ingest(ctx, collection, doc)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{DocumentID: doc.ID, Message: err.Error()})
			continue
		}
		result.Ingested++
		_ = id
	}

	s.log.Info("batch ingested",
		"collection", collection,
		"ingested", result.Ingested,
		"failed", result.Failed,
	)
	return result, nil
}

// Remove deletes a document and all derived state.
func (s *Service) Remove(ctx context.Context, collection, documentID string) error {
	if documentID == "" {
		return errors.New(errors.KindValidation, "document id is required")
	}

	statements := []string{
		`DELETE FROM documents_fts WHERE collection = ? AND doc_id = ?`,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		`DELETE FROM vectors WHERE collection = ? AND doc_id = ?`,
		`DELETE FROM embedding_queue WHERE collection = ? AND document_id = ?`,
	}
	for _, stmt := range statements {
		if err := s.engine.Exec(ctx, stmt, collection, documentID); err != nil {
			return errors.Wrap(errors.KindPersistence, "document delete failed", err).
				WithContext("collection", collection).
				WithContext("document_id", documentID)
		}
	}

	s.publish(ctx, bus.TopicDocumentRemoved, collection, documentID)
	return nil
}

// ProcessEmbeddings drains one batch of the collection's embedding
// queue through its configured provider.
func (s *Service) ProcessEmbeddings(ctx context.Context, collection string, batchSize int) (*queue.ProcessResult, error) {
	info, err := s.engine.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, err
	}

	p, err := s.providers.GetProvider(ctx, collection, providerConfig(info, s.cfg.Provider))
	if err != nil {
		return nil, err
	}

	generate := func(ctx context.Context, item queue.Item) ([]float32, error) {
		return p.GenerateEmbedding(ctx, item.Text)
	}

	result, err := s.queue.ProcessQueue(ctx, queue.ProcessOptions{
		Collection: collection,
		BatchSize:  batchSize,
	}, generate)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, bus.TopicQueueProcessed, map[string]any{
		"collection": collection,
		"processed":  int64(result.Processed),
		"failed":     int64(result.Failed),
		"remaining":  int64(result.RemainingInQueue),
	})
	return result, nil
}

// Worker drains embedding queues in the background.
type Worker struct {
	svc      *Service
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewWorker creates a background embedding worker.
func (s *Service) NewWorker(interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		svc:      s,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run processes every auto-generating collection's queue on a fixed
// interval until Stop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainAll(ctx)
		}
	}
}

// Stop halts the worker and waits for the current pass.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) drainAll(ctx context.Context) {
	rows, err := w.svc.engine.Select(ctx,
		`SELECT name FROM collections WHERE auto_generate = 1`)
	if err != nil {
		w.svc.log.Warn("worker collection scan failed", "error", err.Error())
		return
	}

	for _, row := range rows {
		name, _ := row["name"].(string)
		if name == "" {
			continue
		}
		if _, err := w.svc.ProcessEmbeddings(ctx, name, 0); err != nil {
			w.svc.log.Warn("worker batch failed", "collection", name, "error", err.Error())
		}
	}
}

func (s *Service) publish(ctx context.Context, topic, collection, documentID string) {
	payload := map[string]any{"collection": collection}
	if documentID != "" {
		payload["document_id"] = documentID
	}
	s.publishEvent(ctx, topic, payload)
}

func (s *Service) publishEvent(ctx context.Context, topic string, payload map[string]any) {
	if s.events == nil {
		return
	}
	event := bus.Event{
		ID:        hash.SHA256Short([]byte(topic+time.Now().String()), 12),
		Type:      topic,
		Source:    "ingest",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	if err := s.events.Publish(ctx, topic, event); err != nil {
		s.log.Warn("event publish failed", "topic", topic, "error", err.Error())
	}
}

func validateDocument(doc Document) error {
	if doc.Title == "" && doc.Content == "" {
		return errors.New(errors.KindValidation, "document needs a title or content")
	}
	return nil
}

// providerConfig maps a collection's embedding config onto a provider
// config, with process-level credentials as fallback.
func providerConfig(info *storage.CollectionInfo, cfg config.ProviderConfig) provider.Config {
	pc := provider.Config{
		ProviderKind: provider.Kind(info.Embedding.ProviderKind),
		Model:        info.Embedding.Model,
		Dimensions:   info.Embedding.Dimensions,
		APIKey:       info.Embedding.APIKey,
		BaseURL:      cfg.RemoteBaseURL,
		BatchSize:    info.Embedding.BatchSize,
		Timeout:      info.Embedding.Timeout,
		AutoGenerate: info.Embedding.AutoGenerate,
	}
	if pc.APIKey == "" {
		pc.APIKey = cfg.APIKey
	}
	return pc
}
