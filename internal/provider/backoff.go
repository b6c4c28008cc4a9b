package provider

import (
	"math/rand"
	"time"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
)

const (
	maxRetryDelay = 30 * time.Second
	maxJitter     = time.Second
)

// retryDelay computes the exponential backoff before retry `attempt`
// (1-based): min(2^(attempt-1)·base + jitter, 30s). The base depends
// on what failed.
func retryDelay(attempt int, err error, requestTimeout time.Duration) time.Duration {
	base := baseDelay(err, requestTimeout)

	d := base << (attempt - 1)
	if d <= 0 || d > maxRetryDelay {
		d = maxRetryDelay
	}
	d += time.Duration(rand.Int63n(int64(maxJitter)))
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// baseDelay picks the backoff base for an error: the server-specified
// reset for quota exhaustion, half the request timeout (capped at 5s)
// for timeouts, 2s for server-side failures, 1s otherwise.
func baseDelay(err error, requestTimeout time.Duration) time.Duration {
	switch errors.KindOf(err) {
	case errors.KindQuota:
		if after, ok := errors.RetryAfterOf(err); ok {
			return after
		}
		return 2 * time.Second
	case errors.KindTimeout:
		base := requestTimeout / 2
		if base > 5*time.Second || base <= 0 {
			base = 5 * time.Second
		}
		return base
	case errors.KindNetwork:
		if statusOf(err) >= 500 {
			return 2 * time.Second
		}
	}
	return time.Second
}

// statusOf extracts the HTTP status attached to a provider error.
func statusOf(err error) int {
	var e *errors.Error
	if !errors.As(err, &e) || e.Context == nil {
		return 0
	}
	if status, ok := e.Context["status"].(int); ok {
		return status
	}
	return 0
}
