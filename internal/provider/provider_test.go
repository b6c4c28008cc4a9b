package provider

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

func testDeps() Deps {
	return Deps{
		Log:            logger.New("error", "text"),
		RequestsPerMin: 60,
		MaxRetries:     3,
	}
}

func TestFactory(t *testing.T) {
	deps := testDeps()

	if _, err := New(Config{ProviderKind: KindLocal, Model: "mini", Dimensions: 0}, deps); err == nil {
		t.Error("zero dimensions must fail")
	}
	if _, err := New(Config{ProviderKind: "carrier-pigeon", Dimensions: 8}, deps); err == nil {
		t.Error("unknown kind must fail")
	}
	if _, err := New(Config{ProviderKind: KindRemote, Model: "m", Dimensions: 8}, deps); !errors.Is(err, errors.KindConfiguration) {
		t.Errorf("remote without api key should be a configuration error, got %v", err)
	}

	p, err := New(Config{ProviderKind: KindLocal, Model: "mini", Dimensions: 8}, deps)
	if err != nil {
		t.Fatal(err)
	}
	if p.IsReady() {
		t.Error("provider must not be ready before Initialize")
	}
}

func TestValidateText(t *testing.T) {
	if err := validateText("   ", 100); !errors.Is(err, errors.KindValidation) {
		t.Errorf("blank text: got %v", err)
	}
	if err := validateText(strings.Repeat("x", 200), 100); !errors.Is(err, errors.KindValidation) {
		t.Errorf("oversized text: got %v", err)
	}
	if err := validateText("hello world", 100); err != nil {
		t.Errorf("valid text: got %v", err)
	}
}

func TestValidateBatch(t *testing.T) {
	if err := validateBatch(nil, 4, 100); !errors.Is(err, errors.KindValidation) {
		t.Errorf("empty batch: got %v", err)
	}
	if err := validateBatch([]string{"a1", "b2", "c3", "d4", "e5"}, 4, 100); !errors.Is(err, errors.KindValidation) {
		t.Errorf("oversized batch: got %v", err)
	}
	if err := validateBatch([]string{"ok", "  "}, 4, 100); !errors.Is(err, errors.KindValidation) {
		t.Errorf("batch with blank element: got %v", err)
	}
	if err := validateBatch([]string{"ok", "also ok"}, 4, 100); err != nil {
		t.Errorf("valid batch: got %v", err)
	}
}

func TestLocalProviderDeterministic(t *testing.T) {
	p, err := New(Config{ProviderKind: KindLocal, Model: "mini", Dimensions: 32}, testDeps())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := p.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if !p.IsReady() {
		t.Fatal("provider should be ready after Initialize")
	}

	a, err := p.GenerateEmbedding(ctx, "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.GenerateEmbedding(ctx, "the quick brown fox")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 32 {
		t.Fatalf("dimension = %d, want 32", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("identical text must produce identical vectors")
		}
	}

	c, err := p.GenerateEmbedding(ctx, "a completely different sentence")
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different text should produce a different vector")
	}
}

func TestLocalProviderUnitNorm(t *testing.T) {
	p, _ := New(Config{ProviderKind: KindLocal, Model: "mini", Dimensions: 64}, testDeps())
	ctx := context.Background()
	_ = p.Initialize(ctx)

	vec, err := p.GenerateEmbedding(ctx, "normalize me please")
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
		t.Errorf("vector norm = %f, want 1.0", math.Sqrt(sum))
	}
}

func TestLocalProviderBatchOrder(t *testing.T) {
	p, _ := New(Config{ProviderKind: KindLocal, Model: "mini", Dimensions: 16}, testDeps())
	ctx := context.Background()
	_ = p.Initialize(ctx)

	texts := []string{"first text", "second text", "third text"}
	batch, err := p.GenerateBatch(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("batch size = %d, want %d", len(batch), len(texts))
	}
	for i, text := range texts {
		single, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] differs from single embedding of %q", i, text)
			}
		}
	}
}

func TestL2NormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	out := l2Normalize(v)
	for _, x := range out {
		if x != 0 {
			t.Fatal("zero vector must stay zero")
		}
	}
}
