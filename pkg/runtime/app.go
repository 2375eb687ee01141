// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime assembles a working agent process from configuration:
// capability registry with builtins and MCP tools, language model provider,
// approval store and gate, session store, retrieval library, trace log,
// cost ledger and the loop itself. The CLI builds an App and drives it; the
// packages below stay constructor-injected and free of globals.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/agent"
	"github.com/jllopis/telos/pkg/config"
	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/cost"
	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/mcp"
	"github.com/jllopis/telos/pkg/memory"
	memollama "github.com/jllopis/telos/pkg/memory/ollama"
	"github.com/jllopis/telos/pkg/memory/qdrant"
	"github.com/jllopis/telos/pkg/planner"
	"github.com/jllopis/telos/pkg/safety"
	"github.com/jllopis/telos/pkg/skills"
	"github.com/jllopis/telos/pkg/skills/builtin"
	"github.com/jllopis/telos/pkg/trace"
	"github.com/jllopis/telos/providers/openai"
)

// App holds every assembled collaborator. Fields are exported so the CLI
// and the admin API can reach the pieces they serve; the App owns shared
// resources and releases them in Close.
type App struct {
	Config    *config.Config
	Registry  *skills.Registry
	Provider  llm.Provider
	Approvals governance.ApprovalStore
	Gate      *governance.Gate
	Sweeper   *governance.Sweeper
	Sessions  memory.SessionStore
	Library   *memory.Library
	Ingestor  *memory.Ingestor
	Traces    *trace.Writer
	TraceLog  *trace.Reader
	Ledger    *cost.Ledger
	Agent     *agent.Agent
	MCP       *mcp.Manager
	Health    *core.HealthRegistry

	logger *slog.Logger
	db     *sql.DB
}

type options struct {
	logger          *slog.Logger
	provider        llm.Provider
	resolver        governance.Resolver
	approvalMode    string
	approvalTimeout time.Duration
	maxSteps        int
	graph           *planner.Graph
	sessionID       string
	skipMCP         bool
}

// Option adjusts assembly without editing the loaded configuration.
type Option func(*options)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProvider overrides the configured language model provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithResolver sets the gate's resolver, typically a console prompt wired
// by the CLI when stdin is a terminal.
func WithResolver(r governance.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithApprovalMode overrides approvals.mode from the command line.
func WithApprovalMode(mode string) Option {
	return func(o *options) {
		o.approvalMode = mode
	}
}

// WithApprovalTimeout overrides approvals.timeout_seconds.
func WithApprovalTimeout(d time.Duration) Option {
	return func(o *options) {
		o.approvalTimeout = d
	}
}

// WithMaxSteps overrides agent.max_steps.
func WithMaxSteps(n int) Option {
	return func(o *options) {
		o.maxSteps = n
	}
}

// WithGraph sets an explicit plan graph, skipping the builder for the run.
func WithGraph(g *planner.Graph) Option {
	return func(o *options) {
		o.graph = g
	}
}

// WithSessionID records runs and chat turns under the given session.
func WithSessionID(id string) Option {
	return func(o *options) {
		o.sessionID = id
	}
}

// WithoutMCP skips connecting configured MCP servers. Subcommands that
// never execute capabilities, such as trace inspection, use this to avoid
// spawning child processes.
func WithoutMCP() Option {
	return func(o *options) {
		o.skipMCP = true
	}
}

// New assembles an App from configuration. Construction touches the
// filesystem (trace dir, sqlite db when configured) and spawns configured
// MCP servers; call Close to release everything.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{
		Config: cfg,
		Ledger: cost.NewLedger(),
		Health: core.NewHealthRegistry(),
		logger: o.logger,
	}

	writer, err := trace.NewWriter(cfg.Paths.TraceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace dir: %w", err)
	}
	app.Traces = writer
	app.TraceLog = trace.NewReader(cfg.Paths.TraceDir)

	if err := app.buildStores(cfg); err != nil {
		return nil, err
	}
	if err := app.buildLibrary(cfg); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.buildRegistry(ctx, cfg, o); err != nil {
		app.Close()
		return nil, err
	}

	app.Provider = o.provider
	if app.Provider == nil {
		app.Provider, err = buildProvider(cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	app.buildGate(cfg, o)

	if err := app.buildAgent(cfg, o); err != nil {
		app.Close()
		return nil, err
	}

	app.Agent.RegisterHealth(app.Health)
	if app.MCP != nil {
		for _, name := range app.MCP.Names() {
			server := name
			app.Health.RegisterChecker("mcp:"+server,
				agent.NewToolSourceHealthChecker(server, func(ctx context.Context) (int, error) {
					return app.MCP.ToolCount(ctx, server)
				}))
		}
	}

	app.logger.Info("telos.runtime.ready",
		slog.String("llm_provider", app.Provider.Name()),
		slog.String("llm_model", cfg.LLM.Model),
		slog.Int("capabilities", len(app.Registry.Names())),
		slog.String("approval_store", cfg.Approvals.Store),
	)
	return app, nil
}

// buildStores wires the approval and session stores. The sqlite backend
// shares one database handle for both; everything else stays in memory.
func (a *App) buildStores(cfg *config.Config) error {
	if strings.EqualFold(cfg.Approvals.Store, "sqlite") {
		db, err := memory.OpenSQLite(cfg.Paths.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db

		approvals, err := governance.NewSQLiteApprovalStore(db)
		if err != nil {
			return fmt.Errorf("failed to init approval store: %w", err)
		}
		sessions, err := memory.NewSQLiteSessionStore(db)
		if err != nil {
			return fmt.Errorf("failed to init session store: %w", err)
		}
		a.Approvals = approvals
		a.Sessions = sessions
	} else {
		a.Approvals = governance.NewMemoryApprovalStore()
		a.Sessions = memory.NewMemorySessionStore()
	}

	interval := time.Duration(cfg.Approvals.SweepIntervalSeconds) * time.Second
	sweepStore, ok := a.Approvals.(governance.SweepStore)
	if ok {
		a.Sweeper = governance.NewSweeper(sweepStore, interval)
		a.Sweeper.SetLogger(a.logger)
	}
	return nil
}

// buildLibrary wires the retrieval library when an embedding backend is
// configured. Qdrant serves as the vector store when an address is set;
// otherwise points persist to a JSON file under the data dir.
func (a *App) buildLibrary(cfg *config.Config) error {
	provider := strings.ToLower(cfg.Embedding.Provider)
	if provider != "" && provider != "ollama" {
		return fmt.Errorf("unknown embedding provider: %s", cfg.Embedding.Provider)
	}
	embedder := memollama.NewEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model)

	var store memory.VectorStore
	if cfg.Retrieval.QdrantAddr != "" {
		qs, err := qdrant.New(cfg.Retrieval.QdrantAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		store = qs
	} else {
		fs, err := memory.NewFileVectorStore(filepath.Join(cfg.Paths.DataDir, "vectors.json"))
		if err != nil {
			return fmt.Errorf("failed to open vector store: %w", err)
		}
		store = fs
	}

	a.Library = memory.NewLibrary(store, embedder, cfg.Retrieval.Collection,
		memory.WithTopK(cfg.Retrieval.TopK),
	)
	a.Ingestor = memory.NewIngestor(a.Library, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	return nil
}

// buildRegistry registers builtins under the configured allow-list and
// connects MCP servers, surfacing their tools as skills.
func (a *App) buildRegistry(ctx context.Context, cfg *config.Config, o options) error {
	workspace, err := safety.NewWorkspace(cfg.Paths.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}

	a.Registry = skills.NewRegistry(skills.WithAllowList(cfg.Skills.Allow))
	deps := builtin.Deps{
		Workspace:      workspace,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		Searcher:       a.Library,
		Interpreter:    cfg.Safety.Interpreter,
		CommandTimeout: time.Duration(cfg.Safety.CommandTimeoutSeconds) * time.Second,
		MaxOutputChars: cfg.Safety.MaxOutputChars,
		TopK:           cfg.Retrieval.TopK,
	}
	if err := builtin.RegisterAll(a.Registry, deps); err != nil {
		return fmt.Errorf("failed to register builtins: %w", err)
	}

	if o.skipMCP || len(cfg.MCP.Servers) == 0 {
		return nil
	}
	manager := mcp.NewManager(mcp.WithManagerLogger(a.logger))
	for _, server := range cfg.MCP.Servers {
		err := manager.Connect(ctx, mcp.ServerConfig{
			Name:    server.Name,
			Command: server.Command,
			Args:    server.Args,
			Env:     server.Env,
		})
		if err != nil {
			// A down tool server degrades the registry, it does not
			// block startup.
			a.logger.Warn("telos.runtime.mcp.connect_failed",
				slog.String("server", server.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	if count, err := manager.RegisterSkills(ctx, a.Registry); err != nil {
		a.logger.Warn("telos.runtime.mcp.register_failed",
			slog.String("error", err.Error()),
		)
	} else if count > 0 {
		a.logger.Info("telos.runtime.mcp.registered",
			slog.Int("tools", count),
		)
	}
	a.MCP = manager
	return nil
}

func (a *App) buildGate(cfg *config.Config, o options) {
	mode := cfg.Approvals.Mode
	if o.approvalMode != "" {
		mode = o.approvalMode
	}
	timeout := time.Duration(cfg.Approvals.TimeoutSeconds) * time.Second
	if o.approvalTimeout > 0 {
		timeout = o.approvalTimeout
	}

	gateOpts := []governance.GateOption{
		governance.WithMode(governance.Mode(strings.ToLower(mode))),
		governance.WithTimeout(timeout),
	}
	if o.resolver != nil {
		gateOpts = append(gateOpts, governance.WithResolver(o.resolver))
	}
	a.Gate = governance.NewGate(a.Approvals, governance.RulesFromConfig(cfg.Skills.Risky), gateOpts...)
}

func (a *App) buildAgent(cfg *config.Config, o options) error {
	maxSteps := cfg.Agent.MaxSteps
	if o.maxSteps > 0 {
		maxSteps = o.maxSteps
	}

	var interval time.Duration
	if cfg.Agent.StepRate > 0 {
		interval = time.Duration(float64(time.Second) / cfg.Agent.StepRate)
	}

	agentOpts := []agent.Option{
		agent.WithRegistry(a.Registry),
		agent.WithGate(a.Gate),
		agent.WithLedger(a.Ledger),
		agent.WithTraceWriter(a.Traces),
		agent.WithSessions(a.Sessions),
		agent.WithMaxSteps(maxSteps),
		agent.WithSuccessThreshold(cfg.Agent.SuccessThreshold),
		agent.WithPacer(agent.NewBurstPacer(interval, cfg.Agent.StepBurst)),
		agent.WithFailFast(cfg.Agent.FailFast),
		agent.WithEmitter(a.Traces),
		agent.WithLogger(a.logger),
		agent.WithChatModel(a.Provider, cfg.LLM.Model),
		agent.WithLibrary(a.Library),
	}

	if o.sessionID != "" {
		agentOpts = append(agentOpts, agent.WithSessionID(o.sessionID))
	}
	if o.graph != nil {
		agentOpts = append(agentOpts, agent.WithGraph(o.graph))
	} else if strings.EqualFold(cfg.Agent.Planning, "llm") {
		agentOpts = append(agentOpts,
			agent.WithBuilder(planner.NewLLMBuilder(a.Provider, cfg.LLM.Model, a.Registry.Definitions())),
			agent.WithFeedback(agent.NewLLMEvaluator(a.Provider, cfg.LLM.Model,
				agent.WithEvaluatorLedger(a.Ledger))),
		)
	} else {
		agentOpts = append(agentOpts, agent.WithBuilder(planner.NewChainBuilder(a.Registry)))
	}

	ag, err := agent.New(agentOpts...)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	a.Agent = ag
	return nil
}

// buildProvider maps llm config to a provider instance. Remote backends
// get retry and a circuit breaker; local test doubles stay bare.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "ollama", "":
		var opts []llm.OllamaOption
		if cfg.LLM.TimeoutSeconds > 0 {
			opts = append(opts, llm.WithRequestTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second))
		}
		return llm.NewResilientProvider(llm.NewOllama(cfg.LLM.BaseURL, opts...)), nil

	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.LLM.Model)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		if cfg.LLM.TimeoutSeconds > 0 {
			opts = append(opts, openai.WithRequestTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second))
		}
		return llm.NewResilientProvider(openai.New(cfg.LLM.APIKey, opts...)), nil

	case "null":
		return llm.NewNull(), nil

	case "mock":
		return &llm.MockProvider{Response: "mock response"}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}

// OpenApprovalStore opens just the approval store the configuration names,
// for commands that inspect or settle approvals without assembling a full
// App. The returned close function releases the backing database when one
// was opened.
func OpenApprovalStore(cfg *config.Config) (governance.ApprovalStore, func() error, error) {
	if strings.EqualFold(cfg.Approvals.Store, "sqlite") {
		db, err := memory.OpenSQLite(cfg.Paths.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		store, err := governance.NewSQLiteApprovalStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to init approval store: %w", err)
		}
		return store, db.Close, nil
	}
	return governance.NewMemoryApprovalStore(), func() error { return nil }, nil
}

// Start launches background workers: today that is the approval sweeper.
func (a *App) Start(ctx context.Context) {
	if a.Sweeper != nil {
		a.Sweeper.Start(ctx)
	}
}

// Close stops workers and releases shared resources. Safe on a partially
// assembled App.
func (a *App) Close() error {
	var firstErr error
	if a.Sweeper != nil {
		a.Sweeper.Stop()
	}
	if a.MCP != nil {
		if err := a.MCP.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
