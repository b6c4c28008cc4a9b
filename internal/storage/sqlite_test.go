package storage

import (
	"context"
	"testing"
	"time"
)

func testEngine(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory engine: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndDescribeCollection(t *testing.T) {
	s := testEngine(t)
	ctx := context.Background()

	cfg := EmbeddingConfig{
		ProviderKind: "local",
		Model:        "hash-v1",
		Dimensions:   128,
		BatchSize:    32,
		Timeout:      10 * time.Second,
		AutoGenerate: true,
	}
	if err := s.CreateCollection(ctx, "docs", cfg); err != nil {
		t.Fatalf("CreateCollection failed: %v", err)
	}

	info, err := s.GetCollectionInfo(ctx, "docs")
	if err != nil {
		t.Fatalf("GetCollectionInfo failed: %v", err)
	}
	if info.Embedding.Model != "hash-v1" || info.Embedding.Dimensions != 128 {
		t.Errorf("unexpected embedding config: %+v", info.Embedding)
	}
	if !info.Embedding.AutoGenerate {
		t.Error("auto_generate should round-trip")
	}
	if info.Embedding.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", info.Embedding.Timeout)
	}
	if info.DocumentCount != 0 {
		t.Errorf("new collection document count = %d, want 0", info.DocumentCount)
	}
}

func TestGetCollectionInfoMissing(t *testing.T) {
	s := testEngine(t)
	if _, err := s.GetCollectionInfo(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing collection")
	}
}

func TestCreateCollectionRejectsBadDimensions(t *testing.T) {
	s := testEngine(t)
	ctx := context.Background()

	err := s.CreateCollection(ctx, "docs", EmbeddingConfig{ProviderKind: "local", Dimensions: 0})
	if err == nil {
		t.Error("expected configuration error for zero dimensions with a provider")
	}
	err = s.CreateCollection(ctx, "docs", EmbeddingConfig{Dimensions: -1})
	if err == nil {
		t.Error("expected configuration error for negative dimensions")
	}
}

func TestCreateCollectionLexicalOnly(t *testing.T) {
	s := testEngine(t)
	ctx := context.Background()

	// No provider kind means no embeddings; zero dimensions are valid.
	if err := s.CreateCollection(ctx, "docs", EmbeddingConfig{}); err != nil {
		t.Fatalf("lexical-only collection rejected: %v", err)
	}

	info, err := s.GetCollectionInfo(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if info.Embedding.ProviderKind != "" || info.Embedding.Dimensions != 0 {
		t.Errorf("unexpected embedding config: %+v", info.Embedding)
	}

	if err := s.UpdateCollectionConfig(ctx, "docs", EmbeddingConfig{}); err != nil {
		t.Errorf("lexical-only update rejected: %v", err)
	}
}

func TestUpdateCollectionConfig(t *testing.T) {
	s := testEngine(t)
	ctx := context.Background()

	cfg := EmbeddingConfig{ProviderKind: "local", Model: "hash-v1", Dimensions: 64}
	if err := s.CreateCollection(ctx, "docs", cfg); err != nil {
		t.Fatal(err)
	}

	cfg.Model = "hash-v2"
	cfg.Dimensions = 256
	if err := s.UpdateCollectionConfig(ctx, "docs", cfg); err != nil {
		t.Fatalf("UpdateCollectionConfig failed: %v", err)
	}

	info, err := s.GetCollectionInfo(ctx, "docs")
	if err != nil {
		t.Fatal(err)
	}
	if info.Embedding.Model != "hash-v2" || info.Embedding.Dimensions != 256 {
		t.Errorf("config not updated: %+v", info.Embedding)
	}

	if err := s.UpdateCollectionConfig(ctx, "ghost", cfg); err == nil {
		t.Error("expected error updating missing collection")
	}
}

func TestExecAndSelect(t *testing.T) {
	s := testEngine(t)
	ctx := context.Background()

	now := time.Now()
	err := s.Exec(ctx, `
		INSERT INTO documents (collection, id, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		"docs", "d1", "Title", "Content body", now, now)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	rows, err := s.Select(ctx, `SELECT id, title FROM documents WHERE collection = ?`, "docs")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["id"] != "d1" {
		t.Errorf("id = %v, want d1", rows[0]["id"])
	}
}

func TestStoreVectorRoundTrip(t *testing.T) {
	s := testEngine(t)
	ctx := context.Background()

	vec := []float32{0.1, -0.5, 0.25, 1.0}
	if err := s.StoreVector(ctx, "docs", "d1", vec); err != nil {
		t.Fatalf("StoreVector failed: %v", err)
	}

	// Second write replaces the first.
	vec2 := []float32{0.9, 0.8, 0.7, 0.6}
	if err := s.StoreVector(ctx, "docs", "d1", vec2); err != nil {
		t.Fatalf("StoreVector replace failed: %v", err)
	}

	rows, err := s.Select(ctx, `SELECT embedding, dims FROM vectors WHERE collection = ? AND doc_id = ?`, "docs", "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d vector rows, want 1", len(rows))
	}

	blob, ok := rows[0]["embedding"].([]byte)
	if !ok {
		t.Fatalf("embedding column type = %T, want []byte", rows[0]["embedding"])
	}
	got, err := DecodeVector(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0] != 0.9 {
		t.Errorf("decoded vector = %v, want %v", got, vec2)
	}
}

func TestDecodeVectorRejectsBadLength(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for non-multiple-of-4 blob")
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{1.5, -2.25, 0, 3.14159}
	got, err := DecodeVector(EncodeVector(vec))
	if err != nil {
		t.Fatal(err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], vec[i])
		}
	}
}
