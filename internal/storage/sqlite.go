package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
)

// SQLite is the embedded storage engine backed by modernc.org/sqlite.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string, busyTimeoutMs int) (*SQLite, error) {
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "failed to open database", err)
	}

	// SQLite benefits from a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLite{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*SQLite, error) {
	return Open(":memory:", 0)
}

func (s *SQLite) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			provider_kind TEXT NOT NULL,
			model TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			api_key TEXT,
			batch_size INTEGER NOT NULL DEFAULT 0,
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			auto_generate INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			title, content, collection UNINDEXED, doc_id UNINDEXED
		)`,
		`CREATE TABLE IF NOT EXISTS vectors (
			collection TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			embedding BLOB NOT NULL,
			dims INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (collection, doc_id)
		)`,
		`CREATE TABLE IF NOT EXISTS embedding_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			document_id TEXT NOT NULL,
			text_content TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			processed_at TIMESTAMP,
			error_message TEXT,
			UNIQUE (collection, document_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_status
			ON embedding_queue (status, priority DESC, created_at ASC)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(errors.KindStorage, "migration failed", err)
		}
	}
	return nil
}

// Exec runs a statement that returns no rows.
func (s *SQLite) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.KindStorage, "exec failed", err).WithContext("query", query)
	}
	return nil
}

// Select runs a query and returns all rows keyed by column name.
func (s *SQLite) Select(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "query failed", err).WithContext("query", query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "failed to read columns", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "row scan failed", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "row iteration failed", err)
	}

	return out, nil
}

// CreateCollection creates a collection with its embedding config.
func (s *SQLite) CreateCollection(ctx context.Context, name string, cfg EmbeddingConfig) error {
	if name == "" {
		return errors.New(errors.KindValidation, "collection name must not be empty")
	}
	if err := validateDimensions(name, cfg); err != nil {
		return err
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections
			(name, provider_kind, model, dimensions, api_key, batch_size, timeout_ms, auto_generate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name, cfg.ProviderKind, cfg.Model, cfg.Dimensions, cfg.APIKey,
		cfg.BatchSize, cfg.Timeout.Milliseconds(), boolToInt(cfg.AutoGenerate), now, now)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "failed to create collection", err).
			WithContext("collection", name)
	}
	return nil
}

// GetCollectionInfo describes a collection and counts its documents.
func (s *SQLite) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, provider_kind, model, dimensions, api_key, batch_size, timeout_ms, auto_generate, created_at, updated_at
		FROM collections WHERE name = ?`, name)

	var (
		info      CollectionInfo
		apiKey    sql.NullString
		timeoutMs int64
		autoGen   int
	)
	err := row.Scan(&info.Name, &info.Embedding.ProviderKind, &info.Embedding.Model,
		&info.Embedding.Dimensions, &apiKey, &info.Embedding.BatchSize,
		&timeoutMs, &autoGen, &info.CreatedAt, &info.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.KindStorage, "collection not found").WithContext("collection", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "failed to read collection", err)
	}

	info.Embedding.APIKey = apiKey.String
	info.Embedding.Timeout = time.Duration(timeoutMs) * time.Millisecond
	info.Embedding.AutoGenerate = autoGen != 0

	countRow := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, name)
	if err := countRow.Scan(&info.DocumentCount); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "failed to count documents", err)
	}

	return &info, nil
}

// validateDimensions checks a collection's embedding dimensions.
// Lexical-only collections (no provider kind) carry zero dimensions.
func validateDimensions(name string, cfg EmbeddingConfig) error {
	if cfg.Dimensions < 0 || (cfg.ProviderKind != "" && cfg.Dimensions == 0) {
		return errors.New(errors.KindConfiguration, "embedding dimensions must be positive").
			WithContext("collection", name)
	}
	return nil
}

// UpdateCollectionConfig replaces a collection's embedding config.
func (s *SQLite) UpdateCollectionConfig(ctx context.Context, name string, cfg EmbeddingConfig) error {
	if err := validateDimensions(name, cfg); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE collections
		SET provider_kind = ?, model = ?, dimensions = ?, api_key = ?, batch_size = ?,
		    timeout_ms = ?, auto_generate = ?, updated_at = ?
		WHERE name = ?`,
		cfg.ProviderKind, cfg.Model, cfg.Dimensions, cfg.APIKey, cfg.BatchSize,
		cfg.Timeout.Milliseconds(), boolToInt(cfg.AutoGenerate), time.Now(), name)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "failed to update collection", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.KindStorage, "collection not found").WithContext("collection", name)
	}
	return nil
}

// StoreVector writes a document's embedding, replacing any previous one.
func (s *SQLite) StoreVector(ctx context.Context, collection, documentID string, vector []float32) error {
	if len(vector) == 0 {
		return errors.New(errors.KindValidation, "vector must not be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vectors (collection, doc_id, embedding, dims, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, doc_id) DO UPDATE SET
			embedding = excluded.embedding,
			dims = excluded.dims,
			updated_at = excluded.updated_at`,
		collection, documentID, EncodeVector(vector), len(vector), time.Now())
	if err != nil {
		return errors.Wrap(errors.KindVectorIndex, "failed to store vector", err).
			WithContext("collection", collection).
			WithContext("document_id", documentID)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
