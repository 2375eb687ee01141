// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package runtime

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/llm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:   config.AppConfig{Name: "telos", Environment: "dev"},
		Paths: config.PathsConfig{
			DataDir:      dir,
			WorkspaceDir: filepath.Join(dir, "workspace"),
			TraceDir:     filepath.Join(dir, "traces"),
			DBPath:       filepath.Join(dir, "telos.db"),
		},
		LLM:       config.LLMConfig{Provider: "null"},
		Embedding: config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"},
		Agent: config.AgentConfig{
			MaxSteps:         4,
			SuccessThreshold: 0.8,
			Planning:         "chain",
			StepRate:         100,
			StepBurst:        1,
		},
		Approvals: config.ApprovalsConfig{Mode: "off", Store: "memory", TimeoutSeconds: 1},
		Retrieval: config.RetrievalConfig{Collection: "docs", TopK: 3, ChunkSize: 800, ChunkOverlap: 100},
		Safety:    config.SafetyConfig{CommandTimeoutSeconds: 5, MaxOutputChars: 4096},
	}
}

func TestNewAssemblesCollaborators(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	if app.Registry == nil || len(app.Registry.Names()) == 0 {
		t.Error("expected builtins registered")
	}
	if app.Provider == nil || app.Provider.Name() != "null" {
		t.Errorf("expected null provider, got %v", app.Provider)
	}
	if app.Gate == nil || app.Approvals == nil {
		t.Error("expected approval gate and store")
	}
	if app.Sessions == nil {
		t.Error("expected session store")
	}
	if app.Library == nil || app.Ingestor == nil {
		t.Error("expected retrieval library and ingestor")
	}
	if app.Traces == nil || app.TraceLog == nil {
		t.Error("expected trace writer and reader")
	}
	if app.Agent == nil {
		t.Error("expected assembled agent")
	}
	if app.Health == nil {
		t.Error("expected health registry")
	}
}

func TestNewSQLiteStores(t *testing.T) {
	cfg := testConfig(t)
	cfg.Approvals.Store = "sqlite"

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	if _, ok := app.Approvals.(*governance.SQLiteApprovalStore); !ok {
		t.Errorf("expected sqlite approval store, got %T", app.Approvals)
	}

	// Both stores share the handle; a created item must round-trip.
	item, err := app.Approvals.Create(context.Background(), governance.ApprovalItem{Action: "exec.run"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := app.Approvals.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != governance.StatusPending {
		t.Errorf("expected pending, got %s", got.Status)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "watson"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewUnknownEmbeddingProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "cohere"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown embedding provider")
	}
}

func TestProviderOverride(t *testing.T) {
	mock := &llm.MockProvider{Response: "done"}
	app, err := New(context.Background(), testConfig(t), WithProvider(mock))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	if app.Provider != mock {
		t.Error("expected injected provider to win over config")
	}
}

func TestBuildProviderTable(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{"ollama", "ollama"},
		{"", "ollama"},
		{"openai", "openai"},
		{"null", "null"},
		{"mock", "mock"},
	}
	for _, tt := range tests {
		cfg := &config.Config{LLM: config.LLMConfig{Provider: tt.provider, Model: "m"}}
		p, err := buildProvider(cfg)
		if err != nil {
			t.Fatalf("buildProvider(%q) failed: %v", tt.provider, err)
		}
		if p.Name() != tt.wantName {
			t.Errorf("buildProvider(%q).Name() = %s, want %s", tt.provider, p.Name(), tt.wantName)
		}
	}
}

func TestApprovalModeOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Approvals.Mode = "off"
	cfg.Skills.Risky = []string{"exec.run"}

	app, err := New(context.Background(), cfg,
		WithApprovalMode("deny"),
		WithApprovalTimeout(30*time.Second),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer app.Close()

	decision := app.Gate.Check(context.Background(), governance.Action{
		Name:  "exec.run",
		RunID: "run_1_test",
	})
	if decision.Status != governance.DecisionDeny {
		t.Errorf("expected deny under overridden mode, got %s", decision.Status)
	}
}

func TestStartAndCloseSweeper(t *testing.T) {
	cfg := testConfig(t)
	cfg.Approvals.SweepIntervalSeconds = 1

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	app.Start(context.Background())
	if err := app.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
