// Package storage defines the storage engine collaborator contract and
// its SQLite implementation. The intelligence layer only ever reaches
// relational, full-text and vector state through this interface.
package storage

import (
	"context"
	"time"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// EmbeddingConfig is the per-collection embedding configuration consumed
// when building a provider for the collection.
type EmbeddingConfig struct {
	ProviderKind string        `json:"provider_kind"`
	Model        string        `json:"model"`
	Dimensions   int           `json:"dimensions"`
	APIKey       string        `json:"api_key,omitempty"`
	BatchSize    int           `json:"batch_size,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	AutoGenerate bool          `json:"auto_generate"`
}

// CollectionInfo describes a collection and its embedding configuration.
type CollectionInfo struct {
	Name          string          `json:"name"`
	DocumentCount int             `json:"document_count"`
	Embedding     EmbeddingConfig `json:"embedding"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Engine is the storage engine collaborator. Exec and Select are the
// raw SQL surface; collection management is exposed separately because
// it owns per-collection schema.
type Engine interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) error

	// Select runs a query and returns all rows.
	Select(ctx context.Context, query string, args ...any) ([]Row, error)

	// CreateCollection creates a collection with its embedding config.
	CreateCollection(ctx context.Context, name string, cfg EmbeddingConfig) error

	// GetCollectionInfo describes a collection, or returns a storage
	// error if it does not exist.
	GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)

	// UpdateCollectionConfig replaces a collection's embedding config.
	UpdateCollectionConfig(ctx context.Context, name string, cfg EmbeddingConfig) error

	// StoreVector writes a document's embedding vector.
	StoreVector(ctx context.Context, collection, documentID string, vector []float32) error

	// Close releases the underlying database.
	Close() error
}
