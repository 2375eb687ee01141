package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.LLM.Provider)
	}
	if cfg.Agent.MaxSteps != 8 {
		t.Errorf("expected default max_steps 8, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.SuccessThreshold != 0.8 {
		t.Errorf("expected default success_threshold 0.8, got %v", cfg.Agent.SuccessThreshold)
	}
	if cfg.Approvals.Mode != "console" {
		t.Errorf("expected default approvals mode console, got %s", cfg.Approvals.Mode)
	}
	if len(cfg.Skills.Risky) == 0 {
		t.Errorf("expected default risky capability list to be non-empty")
	}
}

func TestLoadEnv(t *testing.T) {
	os.Setenv("TELOS_LLM_PROVIDER", "openai")
	defer os.Unsetenv("TELOS_LLM_PROVIDER")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider openai from env, got %s", cfg.LLM.Provider)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "telos.yaml")
	body := `
agent:
  max_steps: 3
  success_threshold: 0.5
skills:
  allow: ["web.fetch", "fs.write"]
  risky: ["fs.write"]
approvals:
  mode: auto
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxSteps != 3 {
		t.Errorf("expected max_steps 3, got %d", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.SuccessThreshold != 0.5 {
		t.Errorf("expected success_threshold 0.5, got %v", cfg.Agent.SuccessThreshold)
	}
	if len(cfg.Skills.Allow) != 2 || cfg.Skills.Allow[0] != "web.fetch" {
		t.Errorf("expected allow list [web.fetch fs.write], got %v", cfg.Skills.Allow)
	}
	if cfg.Approvals.Mode != "auto" {
		t.Errorf("expected approvals mode auto, got %s", cfg.Approvals.Mode)
	}
	// Untouched settings keep their defaults.
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected defaulted provider ollama, got %s", cfg.LLM.Provider)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
llm:
  provider: "ollama"
  model: "llama3.1"
log:
  level: "info"
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	devConfig := `
llm:
  provider: "mock"
log:
  level: "debug"
`
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte(devConfig), 0644); err != nil {
		t.Fatalf("failed to write dev config: %v", err)
	}

	prodConfig := `
llm:
  provider: "openai"
log:
  level: "warn"
`
	prodPath := filepath.Join(tmpDir, "config.prod.yaml")
	if err := os.WriteFile(prodPath, []byte(prodConfig), 0644); err != nil {
		t.Fatalf("failed to write prod config: %v", err)
	}

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLogLevel string
		wantModel    string // inherits from base when not overridden
	}{
		{
			name:         "no profile - base only",
			profile:      "",
			wantProvider: "ollama",
			wantLogLevel: "info",
			wantModel:    "llama3.1",
		},
		{
			name:         "dev profile",
			profile:      "dev",
			wantProvider: "mock",
			wantLogLevel: "debug",
			wantModel:    "llama3.1",
		},
		{
			name:         "prod profile",
			profile:      "prod",
			wantProvider: "openai",
			wantLogLevel: "warn",
			wantModel:    "llama3.1",
		},
		{
			name:         "nonexistent profile - falls back to base",
			profile:      "staging",
			wantProvider: "ollama",
			wantLogLevel: "info",
			wantModel:    "llama3.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}

			if cfg.LLM.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.LLM.Provider, tc.wantProvider)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.LLM.Model != tc.wantModel {
				t.Errorf("model: got %s, want %s", cfg.LLM.Model, tc.wantModel)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bad provider", func(c *Config) { c.LLM.Provider = "parrot" }, true},
		{"threshold above one", func(c *Config) { c.Agent.SuccessThreshold = 1.5 }, true},
		{"zero step rate", func(c *Config) { c.Agent.StepRate = 0 }, true},
		{"bad approvals mode", func(c *Config) { c.Approvals.Mode = "maybe" }, true},
		{"bad approvals store", func(c *Config) { c.Approvals.Store = "redis" }, true},
		{"overlap >= chunk size", func(c *Config) { c.Retrieval.ChunkOverlap = c.Retrieval.ChunkSize }, true},
		{"negative max_steps is allowed", func(c *Config) { c.Agent.MaxSteps = -1 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tc.mutate(cfg)
			err = cfg.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()

	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create dev config: %v", err)
	}

	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{
			name:     "existing profile",
			base:     basePath,
			profile:  "dev",
			wantPath: devPath,
		},
		{
			name:     "nonexistent profile",
			base:     basePath,
			profile:  "prod",
			wantPath: "",
		},
		{
			name:     "empty profile",
			base:     basePath,
			profile:  "",
			wantPath: "",
		},
		{
			name:     "empty base",
			base:     "",
			profile:  "dev",
			wantPath: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := profileConfigPath(tc.base, tc.profile)
			if got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
