package search

import (
	"context"
	"time"

	"github.com/sablesearch/sable-search/internal/pkg/errors"
	"github.com/sablesearch/sable-search/internal/provider"
	"github.com/sablesearch/sable-search/internal/storage"
)

// ComponentHealth is the health of one pipeline dependency.
type ComponentHealth struct {
	Healthy   bool   `json:"healthy"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
}

// Health is the aggregate health report of the search pipeline.
type Health struct {
	Healthy   bool                       `json:"healthy"`
	Checks    map[string]ComponentHealth `json:"checks"`
	CheckedAt time.Time                  `json:"checked_at"`

	// RecentErrors are the latest provider failures, newest last.
	RecentErrors []errors.HistoryEntry `json:"recent_errors,omitempty"`
}

// HealthChecker probes the search pipeline's dependencies.
type HealthChecker struct {
	engine    storage.Engine
	providers *provider.Manager
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(engine storage.Engine, providers *provider.Manager) *HealthChecker {
	return &HealthChecker{engine: engine, providers: providers}
}

// Check probes storage and reports cached provider state.
func (h *HealthChecker) Check(ctx context.Context) Health {
	checks := make(map[string]ComponentHealth)

	storageStart := time.Now()
	_, err := h.engine.Select(ctx, "SELECT 1")
	storageHealth := ComponentHealth{
		Healthy:   err == nil,
		Status:    "ok",
		LatencyMs: time.Since(storageStart).Milliseconds(),
	}
	if err != nil {
		storageHealth.Status = err.Error()
	}
	checks["storage"] = storageHealth

	var recent []errors.HistoryEntry
	if h.providers != nil {
		recent = h.providers.RecentErrors(10)
		providerHealth := ComponentHealth{Healthy: true, Status: "ok"}
		if len(recent) > 0 {
			providerHealth.Status = "recent failures"
		}
		checks["providers"] = providerHealth
	}

	healthy := true
	for _, c := range checks {
		if !c.Healthy {
			healthy = false
		}
	}

	return Health{
		Healthy:      healthy,
		Checks:       checks,
		CheckedAt:    time.Now(),
		RecentErrors: recent,
	}
}
