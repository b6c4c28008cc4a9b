// Package collection manages the lifecycle of document collections and
// their embedding configuration.
package collection

import (
	"context"
	"regexp"
	"time"

	"github.com/sablesearch/sable-search/internal/bus"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/provider"
	"github.com/sablesearch/sable-search/internal/storage"
)

// namePattern constrains collection names to something safe for SQL
// identifiers and file paths.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Service provides collection management operations.
type Service struct {
	engine    storage.Engine
	providers *provider.Manager
	events    bus.Bus
	log       *logger.Logger
}

// NewService creates a collection service. The event bus is optional.
func NewService(engine storage.Engine, providers *provider.Manager, events bus.Bus, log *logger.Logger) *Service {
	return &Service{
		engine:    engine,
		providers: providers,
		events:    events,
		log:       log.WithComponent("collection"),
	}
}

// Create creates a collection with its embedding configuration.
func (s *Service) Create(ctx context.Context, name string, cfg storage.EmbeddingConfig) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateEmbedding(cfg); err != nil {
		return err
	}

	if err := s.engine.CreateCollection(ctx, name, cfg); err != nil {
		return err
	}

	s.log.Info("collection created", "collection", name, "provider", cfg.ProviderKind)
	s.publish(ctx, bus.TopicCollectionCreated, name)
	return nil
}

// Get describes a collection.
func (s *Service) Get(ctx context.Context, name string) (*storage.CollectionInfo, error) {
	return s.engine.GetCollectionInfo(ctx, name)
}

// List returns all collections, ordered by name.
func (s *Service) List(ctx context.Context) ([]storage.CollectionInfo, error) {
	rows, err := s.engine.Select(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}

	infos := make([]storage.CollectionInfo, 0, len(rows))
	for _, row := range rows {
		name, _ := row["name"].(string)
		info, err := s.engine.GetCollectionInfo(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// UpdateConfig replaces a collection's embedding configuration and
// invalidates any cached provider built from the old one.
func (s *Service) UpdateConfig(ctx context.Context, name string, cfg storage.EmbeddingConfig) error {
	if err := validateEmbedding(cfg); err != nil {
		return err
	}

	if err := s.engine.UpdateCollectionConfig(ctx, name, cfg); err != nil {
		return err
	}

	if s.providers != nil {
		s.providers.Invalidate(name)
	}

	s.log.Info("collection config updated", "collection", name, "provider", cfg.ProviderKind)
	s.publish(ctx, bus.TopicCollectionUpdated, name)
	return nil
}

// Delete removes a collection and everything stored under it.
func (s *Service) Delete(ctx context.Context, name string) error {
	// Existence check doubles as the not-found error.
	if _, err := s.engine.GetCollectionInfo(ctx, name); err != nil {
		return err
	}

	statements := []string{
		`DELETE FROM documents_fts WHERE collection = ?`,
		`DELETE FROM documents WHERE collection = ?`,
		`DELETE FROM vectors WHERE collection = ?`,
		`DELETE FROM embedding_queue WHERE collection = ?`,
		`DELETE FROM collections WHERE name = ?`,
	}
	for _, stmt := range statements {
		if err := s.engine.Exec(ctx, stmt, name); err != nil {
			return err
		}
	}

	if s.providers != nil {
		s.providers.Invalidate(name)
	}

	s.log.Info("collection deleted", "collection", name)
	return nil
}

// Exists reports whether a collection exists.
func (s *Service) Exists(ctx context.Context, name string) bool {
	_, err := s.engine.GetCollectionInfo(ctx, name)
	return err == nil
}

func (s *Service) publish(ctx context.Context, topic, name string) {
	if s.events == nil {
		return
	}
	event := bus.Event{
		ID:        name + "-" + topic,
		Type:      topic,
		Source:    "collection",
		Timestamp: time.Now().UnixMilli(),
		Payload:   map[string]string{"collection": name},
	}
	if err := s.events.Publish(ctx, topic, event); err != nil {
		s.log.Warn("event publish failed", "topic", topic, "error", err.Error())
	}
}

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return errors.New(errors.KindValidation, "invalid collection name").
			WithContext("name", name)
	}
	return nil
}

// validateEmbedding checks an embedding configuration. An empty
// provider kind means a lexical-only collection and is valid.
func validateEmbedding(cfg storage.EmbeddingConfig) error {
	if cfg.ProviderKind == "" {
		return nil
	}

	switch provider.Kind(cfg.ProviderKind) {
	case provider.KindLocal, provider.KindRemote:
	default:
		return errors.New(errors.KindValidation, "unknown provider kind").
			WithContext("kind", cfg.ProviderKind)
	}

	if cfg.Dimensions <= 0 {
		return errors.New(errors.KindValidation, "embedding dimensions must be positive").
			WithContext("dimensions", cfg.Dimensions)
	}
	if cfg.Model == "" {
		return errors.New(errors.KindValidation, "embedding model must be set")
	}
	return nil
}
