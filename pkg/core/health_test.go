// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"testing"
	"time"
)

func staticChecker(status HealthStatus, msg string) *FunctionHealthChecker {
	return NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		return HealthResult{Status: status, Message: msg}
	})
}

func TestFunctionHealthChecker(t *testing.T) {
	callCount := 0
	checker := NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		callCount++
		return HealthResult{
			Status:  HealthHealthy,
			Message: "ok",
		}
	})

	result := checker.Check(context.Background())
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if result.Status != HealthHealthy {
		t.Errorf("expected Healthy")
	}
	if result.LastCheck.IsZero() {
		t.Errorf("expected LastCheck to be set by wrapper")
	}
}

func TestHealthRegistryCheckAll(t *testing.T) {
	registry := NewHealthRegistry()

	registry.RegisterChecker("store", staticChecker(HealthHealthy, "ok"))
	registry.RegisterChecker("llm", staticChecker(HealthDegraded, "slow"))
	registry.RegisterChecker("vector", staticChecker(HealthUnhealthy, "down"))

	results, overall := registry.CheckAll(context.Background())

	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	// Overall status should be Unhealthy if any component is Unhealthy
	if overall != HealthUnhealthy {
		t.Errorf("expected Unhealthy overall, got %v", overall)
	}
}

func TestHealthRegistryDegraded(t *testing.T) {
	registry := NewHealthRegistry()

	registry.RegisterChecker("store", staticChecker(HealthHealthy, "ok"))
	registry.RegisterChecker("llm", staticChecker(HealthDegraded, "slow"))

	_, overall := registry.CheckAll(context.Background())

	// Overall status should be Degraded if no Unhealthy but some Degraded
	if overall != HealthDegraded {
		t.Errorf("expected Degraded overall, got %v", overall)
	}
}

func TestHealthRegistryHealthy(t *testing.T) {
	registry := NewHealthRegistry()

	registry.RegisterChecker("store", staticChecker(HealthHealthy, "ok"))
	registry.RegisterChecker("llm", staticChecker(HealthHealthy, "ok"))

	_, overall := registry.CheckAll(context.Background())

	if overall != HealthHealthy {
		t.Errorf("expected Healthy overall, got %v", overall)
	}
}

func TestHealthRegistryCheckSpecific(t *testing.T) {
	registry := NewHealthRegistry()
	registry.RegisterChecker("store", staticChecker(HealthHealthy, "ok"))

	result, err := registry.Check(context.Background(), "store")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result.Status != HealthHealthy {
		t.Errorf("expected Healthy")
	}
	if result.Component != "store" {
		t.Errorf("expected component name to be stamped, got %q", result.Component)
	}

	if _, err := registry.Check(context.Background(), "nonexistent"); err == nil {
		t.Errorf("expected error for nonexistent checker")
	}
}

func TestHealthCheckWithContext(t *testing.T) {
	registry := NewHealthRegistry()

	// Checker that respects context timeout
	checker := NewFunctionHealthChecker(func(ctx context.Context) HealthResult {
		select {
		case <-ctx.Done():
			return HealthResult{
				Status:  HealthUnhealthy,
				Message: "context timeout",
			}
		case <-time.After(100 * time.Millisecond):
			return HealthResult{
				Status:  HealthHealthy,
				Message: "ok",
			}
		}
	})

	registry.RegisterChecker("slow_service", checker)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, _ := registry.Check(ctx, "slow_service")
	if result.Status != HealthUnhealthy {
		t.Errorf("expected Unhealthy due to timeout")
	}
}
