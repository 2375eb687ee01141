// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	// HealthHealthy indicates the component is fully operational.
	HealthHealthy HealthStatus = "HEALTHY"

	// HealthDegraded indicates the component is operational but with reduced capacity.
	HealthDegraded HealthStatus = "DEGRADED"

	// HealthUnhealthy indicates the component is not operational.
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// HealthResult represents the result of a health check.
type HealthResult struct {
	Status    HealthStatus
	Component string
	Message   string
	LastCheck time.Time
	Error     error
}

// HealthChecker checks the health of a component.
type HealthChecker interface {
	Check(ctx context.Context) HealthResult
}

// HealthRegistry aggregates health checks for the process. The admin API
// serves its CheckAll result from /healthz.
type HealthRegistry struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthRegistry creates an empty health registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checkers: make(map[string]HealthChecker)}
}

// RegisterChecker registers a health checker for a component.
func (p *HealthRegistry) RegisterChecker(name string, checker HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkers[name] = checker
}

// Check checks the health of a specific component.
func (p *HealthRegistry) Check(ctx context.Context, name string) (HealthResult, error) {
	p.mu.RLock()
	checker, exists := p.checkers[name]
	p.mu.RUnlock()

	if !exists {
		return HealthResult{}, fmt.Errorf("checker not registered: %s", name)
	}

	result := checker.Check(ctx)
	result.Component = name
	return result, nil
}

// CheckAll checks the health of all registered components.
// Overall status is Healthy only if every component is Healthy.
func (p *HealthRegistry) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	p.mu.RLock()
	checkers := make(map[string]HealthChecker, len(p.checkers))
	for name, checker := range p.checkers {
		checkers[name] = checker
	}
	p.mu.RUnlock()

	results := make([]HealthResult, 0, len(checkers))
	overall := HealthHealthy
	for name, checker := range checkers {
		result := checker.Check(ctx)
		result.Component = name
		results = append(results, result)

		switch result.Status {
		case HealthUnhealthy:
			overall = HealthUnhealthy
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}
	return results, overall
}

// FunctionHealthChecker wraps a function as a health checker.
type FunctionHealthChecker struct {
	fn func(ctx context.Context) HealthResult
}

// NewFunctionHealthChecker creates a health checker from a function.
func NewFunctionHealthChecker(fn func(ctx context.Context) HealthResult) *FunctionHealthChecker {
	return &FunctionHealthChecker{fn: fn}
}

// Check calls the underlying function.
func (f *FunctionHealthChecker) Check(ctx context.Context) HealthResult {
	result := f.fn(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	return result
}
