package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// fakeProvider counts lifecycle calls for manager tests.
type fakeProvider struct {
	initCalls    atomic.Int32
	cleanupCalls atomic.Int32
	initErr      error
	initDelay    time.Duration
}

func (f *fakeProvider) Name() string       { return "fake" }
func (f *fakeProvider) Dimensions() int    { return 8 }
func (f *fakeProvider) MaxBatchSize() int  { return 16 }
func (f *fakeProvider) MaxTextLength() int { return 1024 }
func (f *fakeProvider) IsReady() bool      { return f.initCalls.Load() > 0 }

func (f *fakeProvider) Initialize(ctx context.Context) error {
	if f.initDelay > 0 {
		time.Sleep(f.initDelay)
	}
	f.initCalls.Add(1)
	return f.initErr
}

func (f *fakeProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 8), nil
}

func (f *fakeProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 8)
	}
	return out, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{IsHealthy: true, Status: "ok"}
}

func (f *fakeProvider) Cleanup() error {
	f.cleanupCalls.Add(1)
	return nil
}

func testManager(factory func(Config, Deps) (Provider, error)) *Manager {
	m := NewManager(config.ProviderConfig{
		MaxCacheAge:   30 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}, logger.New("error", "text"))
	m.factory = factory
	return m
}

func TestConcurrentGetProviderCoalesces(t *testing.T) {
	fake := &fakeProvider{initDelay: 20 * time.Millisecond}
	var built atomic.Int32
	m := testManager(func(cfg Config, deps Deps) (Provider, error) {
		built.Add(1)
		return fake, nil
	})
	defer m.Close()

	cfg := Config{ProviderKind: KindLocal, Dimensions: 8}
	const n = 16

	var wg sync.WaitGroup
	providers := make([]Provider, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := m.GetProvider(context.Background(), "docs", cfg)
			if err != nil {
				t.Error(err)
				return
			}
			providers[i] = p
		}(i)
	}
	wg.Wait()

	if got := fake.initCalls.Load(); got != 1 {
		t.Errorf("Initialize ran %d times, want exactly 1", got)
	}
	if got := built.Load(); got != 1 {
		t.Errorf("factory ran %d times, want exactly 1", got)
	}
	for i, p := range providers {
		if p != fake {
			t.Fatalf("caller %d got a different provider instance", i)
		}
	}
}

func TestGetProviderPerCollection(t *testing.T) {
	var built atomic.Int32
	m := testManager(func(cfg Config, deps Deps) (Provider, error) {
		built.Add(1)
		return &fakeProvider{}, nil
	})
	defer m.Close()

	ctx := context.Background()
	cfg := Config{ProviderKind: KindLocal, Dimensions: 8}
	if _, err := m.GetProvider(ctx, "a", cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetProvider(ctx, "b", cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetProvider(ctx, "a", cfg); err != nil {
		t.Fatal(err)
	}

	if built.Load() != 2 {
		t.Errorf("factory ran %d times, want 2", built.Load())
	}
	if m.Size() != 2 {
		t.Errorf("cache size = %d, want 2", m.Size())
	}
}

func TestFailedInitializationNotCached(t *testing.T) {
	calls := 0
	m := testManager(func(cfg Config, deps Deps) (Provider, error) {
		calls++
		if calls == 1 {
			return &fakeProvider{initErr: errors.New(errors.KindNetwork, "unreachable")}, nil
		}
		return &fakeProvider{}, nil
	})
	defer m.Close()

	ctx := context.Background()
	cfg := Config{ProviderKind: KindLocal, Dimensions: 8}

	if _, err := m.GetProvider(ctx, "docs", cfg); err == nil {
		t.Fatal("first call should fail")
	}
	if m.Size() != 0 {
		t.Fatal("failed initialization must not be cached")
	}

	if _, err := m.GetProvider(ctx, "docs", cfg); err != nil {
		t.Fatalf("second call should recover, got %v", err)
	}
	if m.Size() != 1 {
		t.Errorf("cache size = %d, want 1", m.Size())
	}
}

func TestSweepEvictsIdleProviders(t *testing.T) {
	fake := &fakeProvider{}
	m := testManager(func(cfg Config, deps Deps) (Provider, error) { return fake, nil })
	defer m.Close()

	ctx := context.Background()
	if _, err := m.GetProvider(ctx, "docs", Config{ProviderKind: KindLocal, Dimensions: 8}); err != nil {
		t.Fatal(err)
	}

	// A sweep inside the idle window leaves the entry alone.
	m.sweep(time.Now().Add(10 * time.Minute))
	if m.Size() != 1 {
		t.Fatal("entry evicted before max cache age")
	}

	// Past the window the entry goes and cleanup runs exactly once.
	m.sweep(time.Now().Add(31 * time.Minute))
	if m.Size() != 0 {
		t.Fatal("idle entry should be evicted")
	}
	if got := fake.cleanupCalls.Load(); got != 1 {
		t.Errorf("Cleanup ran %d times, want exactly 1", got)
	}

	// A second sweep must not dispose again.
	m.sweep(time.Now().Add(62 * time.Minute))
	if got := fake.cleanupCalls.Load(); got != 1 {
		t.Errorf("Cleanup ran %d times after second sweep, want 1", got)
	}
}

func TestUseRefreshesIdleClock(t *testing.T) {
	fake := &fakeProvider{}
	m := testManager(func(cfg Config, deps Deps) (Provider, error) { return fake, nil })
	defer m.Close()

	ctx := context.Background()
	cfg := Config{ProviderKind: KindLocal, Dimensions: 8}
	if _, err := m.GetProvider(ctx, "docs", cfg); err != nil {
		t.Fatal(err)
	}
	// Touch the entry, then sweep just past the original deadline.
	if _, err := m.GetProvider(ctx, "docs", cfg); err != nil {
		t.Fatal(err)
	}
	m.sweep(time.Now().Add(29 * time.Minute))
	if m.Size() != 1 {
		t.Error("recently used entry must survive the sweep")
	}
}

func TestInvalidateDisposes(t *testing.T) {
	fake := &fakeProvider{}
	m := testManager(func(cfg Config, deps Deps) (Provider, error) { return fake, nil })
	defer m.Close()

	ctx := context.Background()
	if _, err := m.GetProvider(ctx, "docs", Config{ProviderKind: KindLocal, Dimensions: 8}); err != nil {
		t.Fatal(err)
	}

	m.Invalidate("docs")
	if m.Size() != 0 {
		t.Error("invalidated entry should be removed")
	}
	if got := fake.cleanupCalls.Load(); got != 1 {
		t.Errorf("Cleanup ran %d times, want 1", got)
	}

	// Invalidating a missing collection is a no-op.
	m.Invalidate("docs")
	if got := fake.cleanupCalls.Load(); got != 1 {
		t.Errorf("Cleanup ran %d times after repeat invalidate, want 1", got)
	}
}

func TestCloseDisposesAll(t *testing.T) {
	a, b := &fakeProvider{}, &fakeProvider{}
	next := a
	m := testManager(func(cfg Config, deps Deps) (Provider, error) {
		p := next
		next = b
		return p, nil
	})

	ctx := context.Background()
	cfg := Config{ProviderKind: KindLocal, Dimensions: 8}
	_, _ = m.GetProvider(ctx, "a", cfg)
	_, _ = m.GetProvider(ctx, "b", cfg)

	m.Close()
	if a.cleanupCalls.Load() != 1 || b.cleanupCalls.Load() != 1 {
		t.Errorf("cleanup calls = %d/%d, want 1/1", a.cleanupCalls.Load(), b.cleanupCalls.Load())
	}
}
