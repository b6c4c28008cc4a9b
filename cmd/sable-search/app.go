package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sablesearch/sable-search/internal/analyzer"
	"github.com/sablesearch/sable-search/internal/bus"
	"github.com/sablesearch/sable-search/internal/collection"
	"github.com/sablesearch/sable-search/internal/config"
	"github.com/sablesearch/sable-search/internal/ingest"
	"github.com/sablesearch/sable-search/internal/metrics"
	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/hash"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
	"github.com/sablesearch/sable-search/internal/provider"
	"github.com/sablesearch/sable-search/internal/queue"
	"github.com/sablesearch/sable-search/internal/search"
	"github.com/sablesearch/sable-search/internal/search/optimizer"
	"github.com/sablesearch/sable-search/internal/search/processor"
	"github.com/sablesearch/sable-search/internal/storage"
	"github.com/sablesearch/sable-search/internal/strategy"
)

// app bundles the wired services behind the CLI commands.
type app struct {
	cfg         *config.Config
	log         *logger.Logger
	engine      *storage.SQLite
	events      bus.Bus
	providers   *provider.Manager
	queue       *queue.Queue
	collections *collection.Service
	ingest      *ingest.Service
	search      *search.Service
	metrics     *metrics.Metrics
}

// newApp loads configuration and wires the full pipeline.
func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	engine, err := storage.Open(cfg.Storage.Path, cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}

	events, err := bus.NewBus(cfg.Bus)
	if err != nil {
		engine.Close()
		return nil, err
	}

	providers := provider.NewManager(cfg.Provider, log)
	providers.Start()

	profiles, err := profileStore(cfg)
	if err != nil {
		engine.Close()
		return nil, err
	}

	q := queue.New(engine, cfg.Queue, log)
	proc := processor.New(cfg.Search, log)
	opt := optimizer.New(cfg.Optimizer, nil, profiles, log)

	m := metrics.New()
	if err := metrics.NewEventSubscriber(m, events).Subscribe(context.Background()); err != nil {
		engine.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		log:         log,
		engine:      engine,
		events:      events,
		providers:   providers,
		queue:       q,
		collections: collection.NewService(engine, providers, events, log),
		ingest:      ingest.NewService(engine, q, providers, events, *cfg, log),
		search: search.NewService(
			engine,
			analyzer.NewService(cfg.Analyzer, log),
			strategy.NewEngine(cfg.Search, log),
			providers,
			proc,
			opt,
			*cfg,
			log,
		),
		metrics: m,
	}, nil
}

// reportSearch publishes the search outcome for metric collection.
func (a *app) reportSearch(ctx context.Context, resp *search.Response, latency time.Duration, searchErr error) {
	payload := map[string]any{"latency_ms": latency.Milliseconds()}
	if resp != nil {
		payload["result_count"] = int64(len(resp.Results))
		payload["degraded"] = resp.Degraded
	}
	if searchErr != nil {
		payload["error_kind"] = string(errors.KindOf(searchErr))
	}
	event := bus.Event{
		ID:        hash.SHA256Short([]byte(time.Now().String()), 12),
		Type:      bus.TopicSearchPerformed,
		Source:    "cli",
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	if err := a.events.Publish(ctx, bus.TopicSearchPerformed, event); err != nil {
		a.log.Debug("search event publish failed", "error", err.Error())
	}
}

func profileStore(cfg *config.Config) (optimizer.ProfileStore, error) {
	if cfg.Profiles.Type == "redis" {
		return optimizer.NewRedisProfileStore(cfg.Profiles.RedisURL)
	}
	return optimizer.NewMemoryProfileStore(), nil
}

func (a *app) close() {
	a.providers.Close()
	if err := a.events.Close(); err != nil {
		a.log.Warn("bus close failed", "error", err.Error())
	}
	if err := a.engine.Close(); err != nil {
		a.log.Warn("engine close failed", "error", err.Error())
	}
}

// emit prints a value as indented JSON.
func emit(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emitText prints a line to stdout.
func emitText(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
