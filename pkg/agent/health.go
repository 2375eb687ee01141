// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/skills"
)

const (
	providerProbeTimeout = 10 * time.Second
	storeProbeTimeout    = 5 * time.Second

	providerProbeWindow = 30 * time.Second
	storeProbeWindow    = 10 * time.Second
)

// probeCache memoizes the last health result for a fixed window. Probes run
// under the lock, so a burst of /healthz polls costs one collaborator call.
type probeCache struct {
	mu     sync.Mutex
	window time.Duration
	last   core.HealthResult
}

func (c *probeCache) check(ctx context.Context, timeout time.Duration, probe func(ctx context.Context) core.HealthResult) core.HealthResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.last.LastCheck.IsZero() && time.Since(c.last.LastCheck) < c.window {
		return c.last
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result := probe(pctx)
	result.LastCheck = time.Now()
	c.last = result
	return result
}

// ProviderHealthChecker reports on a language model provider. The ping is
// whatever cheap call the provider supports. A nil ping reports healthy, so
// providers without one do not flap the registry.
type ProviderHealthChecker struct {
	name  string
	ping  func(ctx context.Context) error
	cache probeCache
}

// NewProviderHealthChecker creates a checker for the named provider.
func NewProviderHealthChecker(name string, ping func(ctx context.Context) error) *ProviderHealthChecker {
	return &ProviderHealthChecker{
		name:  name,
		ping:  ping,
		cache: probeCache{window: providerProbeWindow},
	}
}

// Check probes the provider, serving a cached result inside the window.
func (h *ProviderHealthChecker) Check(ctx context.Context) core.HealthResult {
	return h.cache.check(ctx, providerProbeTimeout, func(ctx context.Context) core.HealthResult {
		result := core.HealthResult{Component: "llm:" + h.name}
		if h.ping == nil {
			result.Status = core.HealthHealthy
			result.Message = "provider configured, no probe"
			return result
		}
		if err := h.ping(ctx); err != nil {
			result.Status = core.HealthUnhealthy
			result.Message = err.Error()
			result.Error = err
			return result
		}
		result.Status = core.HealthHealthy
		result.Message = "provider responsive"
		return result
	})
}

// SessionStoreHealthChecker reports on the session store by reading a probe
// session. A read fault is degraded rather than unhealthy: runs keep working
// with a faulty store, they just lose their transcripts.
type SessionStoreHealthChecker struct {
	name  string
	store memory.SessionStore
	cache probeCache
}

// NewSessionStoreHealthChecker creates a checker for the named store.
func NewSessionStoreHealthChecker(name string, store memory.SessionStore) *SessionStoreHealthChecker {
	return &SessionStoreHealthChecker{
		name:  name,
		store: store,
		cache: probeCache{window: storeProbeWindow},
	}
}

// Check probes the store, serving a cached result inside the window.
func (h *SessionStoreHealthChecker) Check(ctx context.Context) core.HealthResult {
	return h.cache.check(ctx, storeProbeTimeout, func(ctx context.Context) core.HealthResult {
		result := core.HealthResult{Component: "sessions:" + h.name}
		if h.store == nil {
			result.Status = core.HealthUnhealthy
			result.Message = "session store not configured"
			return result
		}
		if _, err := h.store.History(ctx, "healthz-probe", 1); err != nil {
			result.Status = core.HealthDegraded
			result.Message = "history read failed: " + err.Error()
			result.Error = err
			return result
		}
		result.Status = core.HealthHealthy
		result.Message = "session store responsive"
		return result
	})
}

// RegistryHealthChecker reports on the capability registry. An empty registry
// is degraded: the loop still runs, but every planned step fails resolution.
type RegistryHealthChecker struct {
	registry *skills.Registry
}

// NewRegistryHealthChecker creates a checker for the registry.
func NewRegistryHealthChecker(registry *skills.Registry) *RegistryHealthChecker {
	return &RegistryHealthChecker{registry: registry}
}

// Check inspects the registry. No cache: the lookup is in-process.
func (h *RegistryHealthChecker) Check(_ context.Context) core.HealthResult {
	result := core.HealthResult{Component: "skills", LastCheck: time.Now()}
	if h.registry == nil {
		result.Status = core.HealthUnhealthy
		result.Message = "capability registry not configured"
		return result
	}
	n := len(h.registry.Names())
	if n == 0 {
		result.Status = core.HealthDegraded
		result.Message = "no capabilities registered"
		return result
	}
	result.Status = core.HealthHealthy
	result.Message = fmt.Sprintf("%d capabilities registered", n)
	return result
}

// ToolSourceHealthChecker reports on an external capability source, such as
// an MCP server, through its tool discovery call.
type ToolSourceHealthChecker struct {
	name      string
	listTools func(ctx context.Context) (int, error)
	cache     probeCache
}

// NewToolSourceHealthChecker creates a checker for the named source.
func NewToolSourceHealthChecker(name string, listTools func(ctx context.Context) (int, error)) *ToolSourceHealthChecker {
	return &ToolSourceHealthChecker{
		name:      name,
		listTools: listTools,
		cache:     probeCache{window: providerProbeWindow},
	}
}

// Check probes tool discovery, serving a cached result inside the window.
func (h *ToolSourceHealthChecker) Check(ctx context.Context) core.HealthResult {
	return h.cache.check(ctx, providerProbeTimeout, func(ctx context.Context) core.HealthResult {
		result := core.HealthResult{Component: "tools:" + h.name}
		if h.listTools == nil {
			result.Status = core.HealthHealthy
			result.Message = "tool source configured, no probe"
			return result
		}
		count, err := h.listTools(ctx)
		if err != nil {
			result.Status = core.HealthUnhealthy
			result.Message = "tool discovery failed: " + err.Error()
			result.Error = err
			return result
		}
		result.Status = core.HealthHealthy
		result.Message = "tool source operational (" + strconv.Itoa(count) + " tools)"
		return result
	})
}

// RegisterHealth registers checkers for the agent's collaborators on reg.
// Only configured collaborators get a checker.
func (a *Agent) RegisterHealth(reg *core.HealthRegistry) {
	reg.RegisterChecker("skills", NewRegistryHealthChecker(a.registry))
	if a.sessions != nil {
		reg.RegisterChecker("sessions", NewSessionStoreHealthChecker("primary", a.sessions))
	}
	if a.chatProvider != nil {
		reg.RegisterChecker("llm", NewProviderHealthChecker(a.chatProvider.Name(), nil))
	}
}
