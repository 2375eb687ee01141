// Package config loads Telos configuration from defaults, YAML files, CLI
// overrides, and TELOS_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Paths     PathsConfig     `koanf:"paths"`
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Agent     AgentConfig     `koanf:"agent"`
	Skills    SkillsConfig    `koanf:"skills"`
	Approvals ApprovalsConfig `koanf:"approvals"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Safety    SafetyConfig    `koanf:"safety"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	MCP       MCPConfig       `koanf:"mcp"`
	API       APIConfig       `koanf:"api"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Environment string `koanf:"environment"` // dev, prod
}

type PathsConfig struct {
	DataDir      string `koanf:"data_dir"`
	WorkspaceDir string `koanf:"workspace_dir"`
	TraceDir     string `koanf:"trace_dir"`
	DBPath       string `koanf:"db_path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider       string  `koanf:"provider"` // ollama, openai, null
	Model          string  `koanf:"model"`
	BaseURL        string  `koanf:"base_url"`
	APIKey         string  `koanf:"api_key"`
	Temperature    float64 `koanf:"temperature"`
	MaxTokens      int     `koanf:"max_tokens"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
}

type EmbeddingConfig struct {
	Provider  string `koanf:"provider"` // ollama
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	Dimension int    `koanf:"dimension"`
}

type AgentConfig struct {
	MaxSteps         int     `koanf:"max_steps"`
	SuccessThreshold float64 `koanf:"success_threshold"`
	Planning         string  `koanf:"planning"` // chain, llm
	FailFast         bool    `koanf:"fail_fast"`
	StepRate         float64 `koanf:"step_rate"` // iterations per second
	StepBurst        int     `koanf:"step_burst"`
}

type SkillsConfig struct {
	// Allow is the capability allow-list. Empty means every builtin is
	// registered; a non-empty list drops everything outside it.
	Allow []string `koanf:"allow"`
	// Risky names capabilities that require approval before execution.
	Risky []string `koanf:"risky"`
}

type ApprovalsConfig struct {
	Mode                 string `koanf:"mode"` // auto, console, deny, off
	TimeoutSeconds       int    `koanf:"timeout_seconds"`
	SweepIntervalSeconds int    `koanf:"sweep_interval_seconds"`
	Store                string `koanf:"store"` // memory, sqlite
}

type RetrievalConfig struct {
	Collection   string `koanf:"collection"`
	TopK         int    `koanf:"top_k"`
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
	QdrantAddr   string `koanf:"qdrant_addr"`
}

type SafetyConfig struct {
	CommandTimeoutSeconds int    `koanf:"command_timeout_seconds"`
	MaxOutputChars        int    `koanf:"max_output_chars"`
	Interpreter           string `koanf:"interpreter"`
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint       string            `koanf:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers"`
	OTLPUser           string            `koanf:"otlp_user"`
	OTLPToken          string            `koanf:"otlp_token"`
}

type MCPConfig struct {
	Servers []MCPServerConfig `koanf:"servers"`
}

type MCPServerConfig struct {
	Name    string   `koanf:"name"`
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	Env     []string `koanf:"env"`
}

type APIConfig struct {
	Addr string `koanf:"addr"`
}

func setDefaults(k *koanf.Koanf) {
	k.Set("app.name", "telos")
	k.Set("app.environment", "dev")

	k.Set("paths.data_dir", "./data")
	k.Set("paths.workspace_dir", "./workspace")
	k.Set("paths.trace_dir", "./data/traces")
	k.Set("paths.db_path", "./data/telos.db")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.temperature", 0.2)
	k.Set("llm.max_tokens", 1024)
	k.Set("llm.timeout_seconds", 120)

	k.Set("embedding.provider", "ollama")
	k.Set("embedding.model", "nomic-embed-text")
	k.Set("embedding.base_url", "http://localhost:11434")
	k.Set("embedding.dimension", 768)

	k.Set("agent.max_steps", 8)
	k.Set("agent.success_threshold", 0.8)
	k.Set("agent.planning", "chain")
	k.Set("agent.fail_fast", false)
	k.Set("agent.step_rate", 10.0)
	k.Set("agent.step_burst", 1)

	k.Set("skills.allow", []string{})
	k.Set("skills.risky", []string{"fs.write", "exec.run"})

	k.Set("approvals.mode", "console")
	k.Set("approvals.timeout_seconds", 120)
	k.Set("approvals.sweep_interval_seconds", 30)
	k.Set("approvals.store", "memory")

	k.Set("retrieval.collection", "docs")
	k.Set("retrieval.top_k", 4)
	k.Set("retrieval.chunk_size", 800)
	k.Set("retrieval.chunk_overlap", 120)
	k.Set("retrieval.qdrant_addr", "localhost:6334")

	k.Set("safety.command_timeout_seconds", 20)
	k.Set("safety.max_output_chars", 10000)
	k.Set("safety.interpreter", "python3")

	k.Set("telemetry.exporter", "none")
	k.Set("telemetry.otlp_insecure", true)
	k.Set("telemetry.otlp_timeout_seconds", 10)

	k.Set("api.addr", ":8800")
}

// Load reads configuration from the given YAML file (optional) with TELOS_*
// environment variables layered on top.
func Load(path string) (*Config, error) {
	return load(path, "", nil)
}

// LoadWithProfile loads the base config file plus a profile override file
// (config.yaml + config.<profile>.yaml) when the latter exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithCLI parses --config, --profile/--env, and --set key=value arguments
// and loads the resulting configuration.
func LoadWithCLI(args []string) (*Config, error) {
	var (
		path    string
		profile string
		sets    []string
	)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		consume := func() (string, bool) {
			if eq := strings.IndexByte(arg, '='); eq >= 0 {
				return arg[eq+1:], true
			}
			if i+1 < len(args) {
				i++
				return args[i], true
			}
			return "", false
		}
		switch {
		case arg == "--config" || strings.HasPrefix(arg, "--config="):
			if v, ok := consume(); ok {
				path = v
			}
		case arg == "--profile" || strings.HasPrefix(arg, "--profile="),
			arg == "--env" || strings.HasPrefix(arg, "--env="):
			if v, ok := consume(); ok {
				profile = v
			}
		case arg == "--set" || strings.HasPrefix(arg, "--set="):
			if v, ok := consume(); ok {
				sets = append(sets, v)
			}
		}
	}
	return load(path, profile, sets)
}

func load(path, profile string, sets []string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	if profilePath := profileConfigPath(path, profile); profilePath != "" {
		if err := k.Load(file.Provider(profilePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load profile config %s: %w", profilePath, err)
		}
	}

	// CLI --set overrides beat files.
	for _, kv := range sets {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed --set %q, want key=value", kv)
		}
		k.Set(kv[:eq], kv[eq+1:])
	}

	// Environment beats everything (TELOS_LLM_PROVIDER -> llm.provider).
	if err := k.Load(env.Provider("TELOS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TELOS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// profileConfigPath derives the profile override path next to the base file
// (config.yaml + "dev" -> config.dev.yaml). Returns "" when the override does
// not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	candidate := filepath.Join(dir, name+"."+profile+ext)
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

// Validate rejects values no component can act on. It deliberately accepts
// max_steps <= 0: the scheduler defines that boundary (a zero-step run
// terminates as failure).
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "openai", "null", "mock":
	default:
		return fmt.Errorf("llm.provider %q is not one of ollama|openai|null|mock", c.LLM.Provider)
	}
	if c.Agent.SuccessThreshold < 0 || c.Agent.SuccessThreshold > 1 {
		return fmt.Errorf("agent.success_threshold %v outside [0,1]", c.Agent.SuccessThreshold)
	}
	if c.Agent.StepRate <= 0 {
		return fmt.Errorf("agent.step_rate must be positive, got %v", c.Agent.StepRate)
	}
	switch c.Approvals.Mode {
	case "auto", "console", "deny", "off":
	default:
		return fmt.Errorf("approvals.mode %q is not one of auto|console|deny|off", c.Approvals.Mode)
	}
	switch c.Approvals.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("approvals.store %q is not one of memory|sqlite", c.Approvals.Store)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap %d must be in [0, chunk_size)", c.Retrieval.ChunkOverlap)
	}
	return nil
}
