package provider

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/pkg/logger"
)

// Remote API limits. Remote calls ride the network, so batches stay
// small and inputs bounded.
const (
	remoteMaxBatchSize  = 16
	remoteMaxTextLength = 8_192

	// rateLimitRetryAfter is the hint attached to throttling errors
	// when the server gives no reset time.
	rateLimitRetryAfter = 60 * time.Second
)

// remoteProvider embeds text through an OpenAI-compatible HTTP API
// with rate limiting and bounded retries.
type remoteProvider struct {
	cfg     Config
	client  *openai.Client
	limiter *rate.Limiter
	log     *logger.Logger

	maxRetries int
	timeout    time.Duration
	ready      atomic.Bool
}

func newRemote(cfg Config, deps Deps) (*remoteProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.KindConfiguration, "remote provider requires an api key").
			WithContext("model", cfg.Model)
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > remoteMaxBatchSize {
		cfg.BatchSize = remoteMaxBatchSize
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	rpm := deps.RequestsPerMin
	if rpm <= 0 {
		rpm = 60
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = deps.RequestTimeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &remoteProvider{
		cfg:        cfg,
		client:     openai.NewClientWithConfig(clientCfg),
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		log:        deps.Log.WithComponent("provider.remote"),
		maxRetries: deps.MaxRetries,
		timeout:    timeout,
	}, nil
}

func (p *remoteProvider) Name() string       { return "remote:" + p.cfg.Model }
func (p *remoteProvider) Dimensions() int    { return p.cfg.Dimensions }
func (p *remoteProvider) MaxBatchSize() int  { return p.cfg.BatchSize }
func (p *remoteProvider) MaxTextLength() int { return remoteMaxTextLength }
func (p *remoteProvider) IsReady() bool      { return p.ready.Load() }

// Initialize probes the API so a bad key or endpoint fails here
// rather than on the first embedding.
func (p *remoteProvider) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.client.ListModels(ctx); err != nil {
		return classifyAPIError(err)
	}
	p.ready.Store(true)
	p.log.Debug("remote provider initialized", "model", p.cfg.Model, "dimensions", p.cfg.Dimensions)
	return nil
}

func (p *remoteProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := validateText(text, remoteMaxTextLength); err != nil {
		return nil, err
	}
	vecs, err := p.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *remoteProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts, p.cfg.BatchSize, remoteMaxTextLength); err != nil {
		return nil, err
	}
	return p.request(ctx, texts)
}

// request performs one embedding call with rate limiting and retries.
func (p *remoteProvider) request(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 1; attempt <= p.maxRetries+1; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(errors.KindTimeout, "rate limiter wait cancelled", err)
		}

		vecs, err := p.call(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if !errors.IsRetryable(err) || attempt > p.maxRetries {
			break
		}

		delay := retryDelay(attempt, err, p.timeout)
		p.log.Warn("embedding request failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err.Error(),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.Wrap(errors.KindTimeout, "retry wait cancelled", ctx.Err())
		}
	}

	return nil, lastErr
}

func (p *remoteProvider) call(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(p.cfg.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.cfg.Dimensions > 0 {
		req.Dimensions = p.cfg.Dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New(errors.KindEmbedding, "embedding response count mismatch").
			WithContext("got", len(resp.Data)).
			WithContext("want", len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errors.New(errors.KindEmbedding, "embedding response index out of range").
				WithContext("index", d.Index)
		}
		if err := checkDimensions(d.Embedding, p.cfg.Dimensions); err != nil {
			return nil, err
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (p *remoteProvider) HealthCheck(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.client.ListModels(ctx); err != nil {
		return HealthStatus{
			IsHealthy: false,
			Status:    "unreachable",
			Details:   map[string]any{"error": err.Error()},
		}
	}
	return HealthStatus{
		IsHealthy: true,
		Status:    "ok",
		Details:   map[string]any{"model": p.cfg.Model},
	}
}

func (p *remoteProvider) Cleanup() error {
	p.ready.Store(false)
	return nil
}

// classifyAPIError maps an API failure onto the error taxonomy.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.KindTimeout, "embedding request timed out", err)
	}

	status, message := apiErrorDetails(err)
	return classifyHTTPStatus(status, message, err)
}

// classifyHTTPStatus maps an HTTP status and message to an error kind.
// A 429 mentioning quota or billing is quota exhaustion; any other 429
// is transient throttling.
func classifyHTTPStatus(status int, message string, cause error) error {
	lower := strings.ToLower(message)

	switch {
	case status == 401 || status == 403:
		return errors.Wrap(errors.KindAuthentication, "provider rejected the credentials", cause).
			WithContext("status", status)
	case status == 400 || status == 422:
		return errors.Wrap(errors.KindValidation, "provider rejected the request", cause).
			WithContext("status", status)
	case status == 429 && mentionsQuota(lower):
		return errors.Wrap(errors.KindQuota, "provider quota exhausted", cause).
			WithContext("status", status).
			WithRetryAfter(rateLimitRetryAfter)
	case status == 429:
		return errors.Wrap(errors.KindRateLimit, "provider throttled the request", cause).
			WithContext("status", status).
			WithRetryAfter(rateLimitRetryAfter)
	case status >= 500:
		return errors.Wrap(errors.KindNetwork, "provider server error", cause).
			WithContext("status", status)
	case status > 0:
		return errors.Wrap(errors.KindEmbedding, "embedding request failed", cause).
			WithContext("status", status)
	default:
		return errors.Wrap(errors.KindNetwork, "embedding request failed", cause)
	}
}

func mentionsQuota(message string) bool {
	for _, marker := range []string{"quota", "billing", "insufficient_quota", "payment"} {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// apiErrorDetails pulls the HTTP status and message out of the client
// library's error types.
func apiErrorDetails(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, string(reqErr.Body)
	}
	return 0, err.Error()
}
