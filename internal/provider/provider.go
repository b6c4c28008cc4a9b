// Package provider defines the embedding provider contract and its
// local and remote implementations.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// Kind selects a provider implementation.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// charsPerToken is the rough character-to-token ratio used to estimate
// text length limits.
const charsPerToken = 4

// Config is the embedding configuration of one collection.
type Config struct {
	ProviderKind Kind          `json:"provider_kind"`
	Model        string        `json:"model"`
	Dimensions   int           `json:"dimensions"`
	APIKey       string        `json:"api_key,omitempty"`
	BaseURL      string        `json:"base_url,omitempty"`
	BatchSize    int           `json:"batch_size,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	AutoGenerate bool          `json:"auto_generate"`
}

// HealthStatus is the result of a provider health check.
type HealthStatus struct {
	IsHealthy bool           `json:"is_healthy"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
}

// Provider turns text into vectors. Implementations are created by the
// factory and owned by the provider manager.
type Provider interface {
	// Name identifies the provider instance.
	Name() string

	// Dimensions is the vector length this provider produces.
	Dimensions() int

	// MaxBatchSize is the largest batch GenerateBatch accepts.
	MaxBatchSize() int

	// MaxTextLength is the longest input text in characters.
	MaxTextLength() int

	// IsReady reports whether Initialize completed successfully.
	IsReady() bool

	// Initialize prepares the provider. It must be called once before
	// any generation.
	Initialize(ctx context.Context) error

	// GenerateEmbedding embeds one text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch embeds several texts, preserving order.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// HealthCheck probes the provider.
	HealthCheck(ctx context.Context) HealthStatus

	// Cleanup releases provider resources. Safe to call once.
	Cleanup() error
}

// Deps carries the process-level collaborators shared by all
// providers.
type Deps struct {
	Log            *logger.Logger
	RequestsPerMin int
	MaxRetries     int
	RequestTimeout time.Duration
}

// New builds a provider from a collection's embedding config.
func New(cfg Config, deps Deps) (Provider, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New(errors.KindConfiguration, "embedding dimensions must be positive").
			WithContext("dimensions", cfg.Dimensions)
	}

	switch cfg.ProviderKind {
	case KindLocal:
		return newLocal(cfg, deps), nil
	case KindRemote:
		return newRemote(cfg, deps)
	default:
		return nil, errors.New(errors.KindConfiguration, "unknown provider kind").
			WithContext("kind", string(cfg.ProviderKind))
	}
}

// validateText checks a single generation input against the provider's
// limits.
func validateText(text string, maxChars int) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return errors.New(errors.KindValidation, "text is empty")
	}
	if estimateTokens(trimmed) > maxChars/charsPerToken {
		return errors.New(errors.KindValidation, "text exceeds the provider token limit").
			WithContext("estimated_tokens", estimateTokens(trimmed)).
			WithContext("max_tokens", maxChars/charsPerToken)
	}
	return nil
}

// validateBatch checks a batch input against the provider's limits.
// Every element must be individually valid.
func validateBatch(texts []string, maxBatch, maxChars int) error {
	if len(texts) == 0 {
		return errors.New(errors.KindValidation, "batch is empty")
	}
	if len(texts) > maxBatch {
		return errors.New(errors.KindValidation, "batch exceeds the provider batch limit").
			WithContext("size", len(texts)).
			WithContext("max", maxBatch)
	}
	for i, t := range texts {
		if err := validateText(t, maxChars); err != nil {
			var e *errors.Error
			if errors.As(err, &e) {
				return e.WithContext("index", i)
			}
			return err
		}
	}
	return nil
}

func estimateTokens(text string) int {
	return len(text) / charsPerToken
}

// checkDimensions validates a generated vector against the configured
// dimension.
func checkDimensions(vec []float32, want int) error {
	if len(vec) != want {
		return errors.New(errors.KindEmbedding, "embedding dimension mismatch").
			WithContext("got", len(vec)).
			WithContext("want", want)
	}
	return nil
}
