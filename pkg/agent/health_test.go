// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/skills"
)

func TestRegistryHealthChecker(t *testing.T) {
	ctx := context.Background()

	if got := NewRegistryHealthChecker(nil).Check(ctx); got.Status != core.HealthUnhealthy {
		t.Fatalf("nil registry status = %q, want unhealthy", got.Status)
	}
	if got := NewRegistryHealthChecker(skills.NewRegistry()).Check(ctx); got.Status != core.HealthDegraded {
		t.Fatalf("empty registry status = %q, want degraded", got.Status)
	}
	got := NewRegistryHealthChecker(echoRegistry(t, nil)).Check(ctx)
	if got.Status != core.HealthHealthy {
		t.Fatalf("status = %q, want healthy", got.Status)
	}
	if !strings.Contains(got.Message, "2 capabilities") {
		t.Fatalf("message = %q", got.Message)
	}
}

func TestProviderHealthChecker(t *testing.T) {
	ctx := context.Background()

	healthy := NewProviderHealthChecker("mock", nil).Check(ctx)
	if healthy.Status != core.HealthHealthy {
		t.Fatalf("nil ping status = %q, want healthy", healthy.Status)
	}

	failing := NewProviderHealthChecker("mock", func(context.Context) error {
		return fmt.Errorf("connection refused")
	}).Check(ctx)
	if failing.Status != core.HealthUnhealthy {
		t.Fatalf("status = %q, want unhealthy", failing.Status)
	}
	if failing.Error == nil {
		t.Fatal("unhealthy result lost its error")
	}
}

func TestProviderHealthCheckerCachesResult(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	checker := NewProviderHealthChecker("mock", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	first := checker.Check(ctx)
	second := checker.Check(ctx)
	if calls.Load() != 1 {
		t.Fatalf("probe ran %d times inside the window, want 1", calls.Load())
	}
	if !second.LastCheck.Equal(first.LastCheck) {
		t.Fatalf("cached result recomputed: %v vs %v", second.LastCheck, first.LastCheck)
	}
}

// failingStore fails every history read; the other methods never run here.
type failingStore struct {
	memory.SessionStore
}

func (failingStore) History(context.Context, string, int) ([]memory.Message, error) {
	return nil, fmt.Errorf("disk gone")
}

func TestSessionStoreHealthChecker(t *testing.T) {
	ctx := context.Background()

	if got := NewSessionStoreHealthChecker("primary", nil).Check(ctx); got.Status != core.HealthUnhealthy {
		t.Fatalf("nil store status = %q, want unhealthy", got.Status)
	}
	if got := NewSessionStoreHealthChecker("primary", memory.NewMemorySessionStore()).Check(ctx); got.Status != core.HealthHealthy {
		t.Fatalf("status = %q, want healthy", got.Status)
	}
	got := NewSessionStoreHealthChecker("primary", failingStore{}).Check(ctx)
	if got.Status != core.HealthDegraded {
		t.Fatalf("failing store status = %q, want degraded", got.Status)
	}
}

func TestToolSourceHealthChecker(t *testing.T) {
	ctx := context.Background()

	got := NewToolSourceHealthChecker("files", func(context.Context) (int, error) {
		return 3, nil
	}).Check(ctx)
	if got.Status != core.HealthHealthy {
		t.Fatalf("status = %q, want healthy", got.Status)
	}
	if !strings.Contains(got.Message, "3 tools") {
		t.Fatalf("message = %q", got.Message)
	}

	down := NewToolSourceHealthChecker("files", func(context.Context) (int, error) {
		return 0, fmt.Errorf("transport closed")
	}).Check(ctx)
	if down.Status != core.HealthUnhealthy {
		t.Fatalf("status = %q, want unhealthy", down.Status)
	}
}

func TestRegisterHealth(t *testing.T) {
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithSessions(memory.NewMemorySessionStore()),
		WithChatModel(&llm.MockProvider{Response: "ok"}, "test-model"),
	)
	reg := core.NewHealthRegistry()
	a.RegisterHealth(reg)

	results, overall := reg.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("checkers = %d, want 3", len(results))
	}
	if overall != core.HealthHealthy {
		t.Fatalf("overall = %q, want healthy", overall)
	}
}
