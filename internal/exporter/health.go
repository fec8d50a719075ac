package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	healthCacheKey = "pbs_connectivity"
	healthCacheTTL = 30 * time.Second
	healthTimeout  = 5 * time.Second
)

// HealthChecker answers liveness probes by verifying PBS connectivity with
// a cheap version fetch. Results are cached for a short TTL so an
// aggressive probe interval (load balancers, Kubernetes) does not multiply
// load on PBS.
type HealthChecker struct {
	registry *PbsRegistry
	cache    *cache.Cache
}

// NewHealthChecker creates a checker backed by the registry's PBS client.
func NewHealthChecker(registry *PbsRegistry) *HealthChecker {
	return &HealthChecker{
		registry: registry,
		cache:    cache.New(healthCacheTTL, 2*healthCacheTTL),
	}
}

// Check reports whether PBS is currently reachable. A cached verdict is
// returned when fresh; otherwise a version fetch with a short timeout runs
// and its outcome is cached.
func (h *HealthChecker) Check(ctx context.Context) error {
	if cached, found := h.cache.Get(healthCacheKey); found {
		if err, ok := cached.(error); ok && err != nil {
			return err
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	_, err := h.registry.Client().FetchVersion(ctx)
	if err != nil {
		err = fmt.Errorf("PBS connectivity check failed: %w", err)
		h.cache.Set(healthCacheKey, err, cache.DefaultExpiration)
		return err
	}

	h.cache.Set(healthCacheKey, error(nil), cache.DefaultExpiration)
	return nil
}

// Flush drops the cached verdict. Called after a config reload swaps the
// PBS client so the next probe hits the new endpoint.
func (h *HealthChecker) Flush() {
	h.cache.Flush()
}
