package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// cacheEntry is one collection's cached provider.
type cacheEntry struct {
	provider Provider
	cfg      Config
	lastUsed time.Time
}

// Manager caches one provider per collection. First use builds and
// initializes the provider; concurrent first uses are coalesced so
// exactly one Initialize runs. Idle entries are swept out and
// disposed.
type Manager struct {
	cfg     config.ProviderConfig
	factory func(Config, Deps) (Provider, error)
	deps    Deps
	log     *logger.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	group   singleflight.Group
	history *errors.History

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a provider manager. Call Start to enable the
// eviction sweep and Close on shutdown.
func NewManager(cfg config.ProviderConfig, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		factory: New,
		deps: Deps{
			Log:            log,
			RequestsPerMin: cfg.RequestsPerMin,
			MaxRetries:     cfg.MaxRetries,
			RequestTimeout: cfg.RequestTimeout,
		},
		log:     log.WithComponent("provider.manager"),
		entries: make(map[string]*cacheEntry),
		history: errors.NewHistory(100),
		stop:    make(chan struct{}),
	}
}

// GetProvider returns the collection's provider, building and
// initializing it on first use.
func (m *Manager) GetProvider(ctx context.Context, collection string, cfg Config) (Provider, error) {
	m.mu.Lock()
	if e, ok := m.entries[collection]; ok {
		e.lastUsed = time.Now()
		p := e.provider
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(collection, func() (any, error) {
		// Another caller may have won the race before this flight
		// started.
		m.mu.Lock()
		if e, ok := m.entries[collection]; ok {
			e.lastUsed = time.Now()
			p := e.provider
			m.mu.Unlock()
			return p, nil
		}
		m.mu.Unlock()

		p, err := m.factory(cfg, m.deps)
		if err != nil {
			m.history.Record("provider.manager", "build", err)
			return nil, err
		}
		if err := p.Initialize(ctx); err != nil {
			// Failed initialization is never cached.
			wrapped := errors.Wrap(errors.KindEmbedding, "provider initialization failed", err).
				WithContext("collection", collection)
			m.history.Record("provider.manager", "initialize", wrapped)
			return nil, wrapped
		}

		m.mu.Lock()
		m.entries[collection] = &cacheEntry{
			provider: p,
			cfg:      cfg,
			lastUsed: time.Now(),
		}
		m.mu.Unlock()

		m.log.Info("provider initialized",
			"collection", collection,
			"provider", p.Name(),
			"dimensions", p.Dimensions(),
		)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Invalidate removes and disposes the collection's cached provider.
// Call it whenever the collection's embedding config changes.
func (m *Manager) Invalidate(collection string) {
	m.mu.Lock()
	e, ok := m.entries[collection]
	if ok {
		delete(m.entries, collection)
	}
	m.mu.Unlock()

	if ok {
		m.dispose(collection, e)
	}
}

// Start launches the periodic eviction sweep.
func (m *Manager) Start() {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep(time.Now())
			case <-m.stop:
				return
			}
		}
	}()
}

// sweep evicts entries idle longer than the cache age. Each evicted
// provider is disposed exactly once: removal from the map under the
// lock decides ownership.
func (m *Manager) sweep(now time.Time) {
	maxAge := m.cfg.MaxCacheAge
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}

	m.mu.Lock()
	expired := make(map[string]*cacheEntry)
	for collection, e := range m.entries {
		if now.Sub(e.lastUsed) > maxAge {
			expired[collection] = e
			delete(m.entries, collection)
		}
	}
	m.mu.Unlock()

	for collection, e := range expired {
		m.log.Info("evicting idle provider", "collection", collection, "idle", now.Sub(e.lastUsed))
		m.dispose(collection, e)
	}
}

// Close stops the sweep and disposes every cached provider.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*cacheEntry)
	m.mu.Unlock()

	for collection, e := range entries {
		m.dispose(collection, e)
	}
}

// Size reports how many providers are cached.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RecentErrors returns up to n recent provider failures, newest last.
func (m *Manager) RecentErrors(n int) []errors.HistoryEntry {
	return m.history.Recent(n)
}

func (m *Manager) dispose(collection string, e *cacheEntry) {
	if err := e.provider.Cleanup(); err != nil {
		m.log.Warn("provider cleanup failed", "collection", collection, "error", err.Error())
		m.history.Record("provider.manager", "cleanup", err)
	}
}
