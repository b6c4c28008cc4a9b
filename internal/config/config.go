// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Analyzer configuration
	Analyzer AnalyzerConfig `yaml:"analyzer"`

	// Search configuration
	Search SearchConfig `yaml:"search"`

	// Provider configuration
	Provider ProviderConfig `yaml:"provider"`

	// Queue configuration
	Queue QueueConfig `yaml:"queue"`

	// Optimizer configuration
	Optimizer OptimizerConfig `yaml:"optimizer"`

	// Profiles configuration
	Profiles ProfilesConfig `yaml:"profiles"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// StorageConfig holds storage engine settings.
type StorageConfig struct {
	Path        string `envconfig:"SABLE_STORAGE_PATH" yaml:"path"`
	BusyTimeout int    `envconfig:"SABLE_STORAGE_BUSY_TIMEOUT_MS" yaml:"busy_timeout_ms"`
}

// AnalyzerConfig holds query analysis settings.
type AnalyzerConfig struct {
	EnableIntent    bool `envconfig:"SABLE_ANALYZER_INTENT" yaml:"enable_intent"`
	EnableExpansion bool `envconfig:"SABLE_ANALYZER_EXPANSION" yaml:"enable_expansion"`
	EnableEntities  bool `envconfig:"SABLE_ANALYZER_ENTITIES" yaml:"enable_entities"`
	CacheSize       int  `envconfig:"SABLE_ANALYZER_CACHE_SIZE" yaml:"cache_size"`
}

// SearchConfig holds search pipeline settings.
type SearchConfig struct {
	DefaultTopK      int     `envconfig:"SABLE_DEFAULT_TOP_K" yaml:"default_top_k"`
	MaxResults       int     `envconfig:"SABLE_MAX_RESULTS" yaml:"max_results"`
	MinScore         float64 `envconfig:"SABLE_MIN_SCORE" yaml:"min_score"`
	FallbackStrategy string  `envconfig:"SABLE_FALLBACK_STRATEGY" yaml:"fallback_strategy"`
	FtsWeight        float64 `envconfig:"SABLE_FTS_WEIGHT" yaml:"fts_weight"`
	VectorWeight     float64 `envconfig:"SABLE_VECTOR_WEIGHT" yaml:"vector_weight"`
	SnippetWindow    int     `envconfig:"SABLE_SNIPPET_WINDOW" yaml:"snippet_window"`
	SnippetMatches   int     `envconfig:"SABLE_SNIPPET_MATCHES" yaml:"snippet_matches"`
	EnableDedup      bool    `envconfig:"SABLE_ENABLE_DEDUP" yaml:"enable_dedup"`
	HighlightPre     string  `envconfig:"SABLE_HIGHLIGHT_PRE" yaml:"highlight_pre"`
	HighlightPost    string  `envconfig:"SABLE_HIGHLIGHT_POST" yaml:"highlight_post"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	MaxCacheAge    time.Duration `envconfig:"SABLE_PROVIDER_CACHE_AGE" yaml:"max_cache_age"`
	SweepInterval  time.Duration `envconfig:"SABLE_PROVIDER_SWEEP_INTERVAL" yaml:"sweep_interval"`
	RequestTimeout time.Duration `envconfig:"SABLE_PROVIDER_TIMEOUT" yaml:"request_timeout"`
	MaxRetries     int           `envconfig:"SABLE_PROVIDER_MAX_RETRIES" yaml:"max_retries"`
	RequestsPerMin int           `envconfig:"SABLE_PROVIDER_RPM" yaml:"requests_per_min"`
	RemoteBaseURL  string        `envconfig:"SABLE_PROVIDER_BASE_URL" yaml:"remote_base_url"`
	APIKey         string        `envconfig:"SABLE_PROVIDER_API_KEY" yaml:"api_key"`
}

// QueueConfig holds embedding queue settings.
type QueueConfig struct {
	BatchSize  int `envconfig:"SABLE_QUEUE_BATCH_SIZE" yaml:"batch_size"`
	MaxRetries int `envconfig:"SABLE_QUEUE_MAX_RETRIES" yaml:"max_retries"`
	Workers    int `envconfig:"SABLE_QUEUE_WORKERS" yaml:"workers"`
}

// OptimizerConfig holds result optimization settings.
type OptimizerConfig struct {
	ModelWeight     float64 `envconfig:"SABLE_OPTIMIZER_MODEL_WEIGHT" yaml:"model_weight"`
	Diversification string  `envconfig:"SABLE_OPTIMIZER_DIVERSIFICATION" yaml:"diversification"`
	DiversityAlpha  float64 `envconfig:"SABLE_OPTIMIZER_DIVERSITY_ALPHA" yaml:"diversity_alpha"`
	Personalization bool    `envconfig:"SABLE_OPTIMIZER_PERSONALIZATION" yaml:"personalization"`
	FeedbackBuffer  int     `envconfig:"SABLE_OPTIMIZER_FEEDBACK_BUFFER" yaml:"feedback_buffer"`
}

// ProfilesConfig holds user profile store settings.
type ProfilesConfig struct {
	Type     string `envconfig:"SABLE_PROFILES_TYPE" yaml:"type"`
	RedisURL string `envconfig:"SABLE_PROFILES_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SABLE_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"SABLE_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"SABLE_KAFKA_GROUP" yaml:"kafka_group"`
	MaxInFlight  int    `envconfig:"SABLE_BUS_MAX_IN_FLIGHT" yaml:"max_in_flight"`

	// JournalPath enables an append-only event journal when set.
	JournalPath string `envconfig:"SABLE_BUS_JOURNAL_PATH" yaml:"journal_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SABLE_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SABLE_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Storage = StorageConfig{
		Path:        "sable.db",
		BusyTimeout: 5000,
	}

	cfg.Analyzer = AnalyzerConfig{
		EnableIntent:    true,
		EnableExpansion: true,
		EnableEntities:  true,
		CacheSize:       1000,
	}

	cfg.Search = SearchConfig{
		DefaultTopK:      20,
		MaxResults:       500,
		MinScore:         0.0,
		FallbackStrategy: "keyword",
		FtsWeight:        0.7,
		VectorWeight:     0.3,
		SnippetWindow:    5,
		SnippetMatches:   3,
		EnableDedup:      true,
		HighlightPre:     "<mark>",
		HighlightPost:    "</mark>",
	}

	cfg.Provider = ProviderConfig{
		MaxCacheAge:    30 * time.Minute,
		SweepInterval:  5 * time.Minute,
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
		RequestsPerMin: 60,
	}

	cfg.Queue = QueueConfig{
		BatchSize:  10,
		MaxRetries: 3,
		Workers:    4,
	}

	cfg.Optimizer = OptimizerConfig{
		ModelWeight:     0.3,
		Diversification: "semantic",
		DiversityAlpha:  0.7,
		Personalization: true,
		FeedbackBuffer:  1000,
	}

	cfg.Profiles = ProfilesConfig{
		Type:     "memory",
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:        "memory",
		MaxInFlight: 10,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Storage.Path == "" {
		errs = append(errs, "storage path must not be empty")
	}

	validStrategies := map[string]bool{"keyword": true, "fuzzy": true, "phrase": true}
	if !validStrategies[c.Search.FallbackStrategy] {
		errs = append(errs, fmt.Sprintf("invalid fallback strategy: %s (must be keyword, fuzzy, or phrase)", c.Search.FallbackStrategy))
	}

	if c.Search.DefaultTopK < 1 {
		errs = append(errs, "default_top_k must be positive")
	}

	if c.Search.FtsWeight < 0 || c.Search.VectorWeight < 0 {
		errs = append(errs, "fusion weights must be non-negative")
	}

	if c.Provider.MaxCacheAge <= 0 {
		errs = append(errs, "provider max_cache_age must be positive")
	}

	if c.Provider.MaxRetries < 0 {
		errs = append(errs, "provider max_retries must not be negative")
	}

	if c.Queue.BatchSize < 1 {
		errs = append(errs, "queue batch_size must be positive")
	}

	if c.Queue.MaxRetries < 0 {
		errs = append(errs, "queue max_retries must not be negative")
	}

	validDiversification := map[string]bool{"semantic": true, "cluster": true, "mmd": true, "roundrobin": true, "none": true}
	if !validDiversification[c.Optimizer.Diversification] {
		errs = append(errs, fmt.Sprintf("invalid diversification algorithm: %s", c.Optimizer.Diversification))
	}

	validProfileTypes := map[string]bool{"memory": true, "redis": true}
	if !validProfileTypes[c.Profiles.Type] {
		errs = append(errs, fmt.Sprintf("invalid profile store type: %s (must be memory or redis)", c.Profiles.Type))
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
