// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jllopis/telos/pkg/skills"
)

var (
	// ErrServerNotFound is returned when asking for a server that was never
	// connected or has been closed.
	ErrServerNotFound = stderrors.New("mcp: server not connected")

	// ErrDuplicateServer is returned when connecting a name twice.
	ErrDuplicateServer = stderrors.New("mcp: server already connected")

	// ErrInvalidServerConfig is returned when a server entry lacks a name
	// or a command.
	ErrInvalidServerConfig = stderrors.New("mcp: server name and command are required")
)

// ServerConfig describes one stdio MCP server to spawn. It mirrors the
// mcp.servers entries in the configuration file.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	// Env holds KEY=VALUE pairs added to the child environment.
	Env []string
}

// Manager owns the MCP connections a process dials from configuration:
// spawn on Connect, expose tools as registry skills, close everything on
// shutdown. Connection order is preserved so skill registration stays
// deterministic across restarts.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*Client
	order   []string
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for connection lifecycle events.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager builds a Manager with no connections.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		clients: make(map[string]*Client),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect dials the configured server and adopts the connection under its
// name. A failed dial leaves the Manager unchanged.
func (m *Manager) Connect(ctx context.Context, cfg ServerConfig, opts ...ClientOption) error {
	if cfg.Name == "" || cfg.Command == "" {
		return ErrInvalidServerConfig
	}

	m.mu.Lock()
	_, exists := m.clients[cfg.Name]
	m.mu.Unlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateServer, cfg.Name)
	}

	c, err := Dial(ctx, cfg.Command, cfg.Env, cfg.Args, opts...)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.clients[cfg.Name]; exists {
		m.mu.Unlock()
		_ = c.Close()
		return fmt.Errorf("%w: %s", ErrDuplicateServer, cfg.Name)
	}
	m.clients[cfg.Name] = c
	m.order = append(m.order, cfg.Name)
	m.mu.Unlock()

	m.logger.Info("mcp.server.connected",
		slog.String("server", cfg.Name),
		slog.String("command", cfg.Command),
	)
	return nil
}

// Client returns the connection adopted under name.
func (m *Manager) Client(name string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	return c, nil
}

// Names returns the connected server names in connection order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// RegisterSkills lists every connected server's tools and registers each
// one as a skill named "server.tool". It returns the number of skills
// registered; on error the registrations made so far remain in place.
func (m *Manager) RegisterSkills(ctx context.Context, reg *skills.Registry) (int, error) {
	total := 0
	for _, name := range m.Names() {
		c, err := m.Client(name)
		if err != nil {
			return total, err
		}
		tools, err := c.ListTools(ctx)
		if err != nil {
			return total, fmt.Errorf("mcp: list tools on %s: %w", name, err)
		}
		count := 0
		for _, tool := range tools {
			adapter, err := NewSkillAdapter(tool, c, WithNamePrefix(name))
			if err != nil {
				return total, fmt.Errorf("mcp: adapt tool %q on %s: %w", tool.Name, name, err)
			}
			if err := reg.Register(adapter); err != nil {
				return total, err
			}
			count++
			total++
		}
		m.logger.Info("mcp.skills.registered",
			slog.String("server", name),
			slog.Int("count", count),
		)
	}
	return total, nil
}

// ToolCount reports how many tools the named server currently advertises.
// Health probes use it as a liveness check.
func (m *Manager) ToolCount(ctx context.Context, name string) (int, error) {
	c, err := m.Client(name)
	if err != nil {
		return 0, err
	}
	tools, err := c.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	return len(tools), nil
}

// Close shuts down every connection. The Manager is empty afterwards and
// can be reused.
func (m *Manager) Close() error {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.order = nil
	m.mu.Unlock()

	var errs []error
	for name, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mcp: close %s: %w", name, err))
		}
	}
	return stderrors.Join(errs...)
}
