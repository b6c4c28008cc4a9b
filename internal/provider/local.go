package provider

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// Local inference limits. The local path runs in-process, so batches
// can be large and inputs long.
const (
	localMaxBatchSize  = 128
	localMaxTextLength = 32_768
)

// localProvider embeds text in-process with a deterministic
// feature-hashing projection. No network, no external model files.
type localProvider struct {
	cfg   Config
	log   *logger.Logger
	ready atomic.Bool
}

func newLocal(cfg Config, deps Deps) *localProvider {
	if cfg.BatchSize <= 0 || cfg.BatchSize > localMaxBatchSize {
		cfg.BatchSize = localMaxBatchSize
	}
	return &localProvider{
		cfg: cfg,
		log: deps.Log.WithComponent("provider.local"),
	}
}

func (p *localProvider) Name() string       { return "local:" + p.cfg.Model }
func (p *localProvider) Dimensions() int    { return p.cfg.Dimensions }
func (p *localProvider) MaxBatchSize() int  { return p.cfg.BatchSize }
func (p *localProvider) MaxTextLength() int { return localMaxTextLength }
func (p *localProvider) IsReady() bool      { return p.ready.Load() }

func (p *localProvider) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.ready.Store(true)
	p.log.Debug("local provider initialized", "model", p.cfg.Model, "dimensions", p.cfg.Dimensions)
	return nil
}

func (p *localProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := validateText(text, localMaxTextLength); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := p.project(text)
	if err := checkDimensions(vec, p.cfg.Dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

func (p *localProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts, p.cfg.BatchSize, localMaxTextLength); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.project(t)
	}
	return out, nil
}

func (p *localProvider) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		IsHealthy: p.IsReady(),
		Status:    "ok",
		Details: map[string]any{
			"model":      p.cfg.Model,
			"dimensions": p.cfg.Dimensions,
		},
	}
}

func (p *localProvider) Cleanup() error {
	p.ready.Store(false)
	return nil
}

// project maps text into a unit vector by hashing overlapping
// character shingles into dimension buckets. Identical text always
// yields the identical vector.
func (p *localProvider) project(text string) []float32 {
	dim := p.cfg.Dimensions
	vec := make([]float32, dim)

	const shingle = 3
	runes := []rune(text)
	if len(runes) < shingle {
		runes = append(runes, make([]rune, shingle-len(runes))...)
	}

	for i := 0; i+shingle <= len(runes); i++ {
		h := fnv.New64a()
		h.Write([]byte(string(runes[i : i+shingle])))
		sum := h.Sum64()

		bucket := int(sum % uint64(dim))
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}

	return l2Normalize(vec)
}

// l2Normalize normalizes a vector to unit length.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = x / norm
	}

	return result
}
