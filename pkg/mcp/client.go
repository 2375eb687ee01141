// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp connects external Model Context Protocol servers as capability
// sources. A Client wraps one server connection; SkillAdapter exposes each
// remote tool as a registry skill; Manager owns the connections a process
// spawns from configuration.
package mcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/telos/pkg/resilience"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 30 * time.Second

	clientName    = "telos"
	clientVersion = "0.1.0"
)

// Transport is the slice of the MCP client surface the wrapper uses. The
// stdio client from mcp-go satisfies it; tests substitute fakes.
type Transport interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout. Non-positive values disable it.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetry replaces the retry policy applied to tool listing and calls.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = rc
	}
}

// WithToolCacheTTL sets how long a tool listing is served from cache.
// Zero disables caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client wraps one MCP server connection with per-request timeouts, retry
// on transient transport failures, and a short-lived tool listing cache.
type Client struct {
	transport Transport
	timeout   time.Duration
	retry     resilience.RetryConfig
	cacheTTL  time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient wraps an already established transport.
func NewClient(tr Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: tr,
		timeout:   defaultTimeout,
		retry:     resilience.DefaultRetryConfig().WithIsRecoverable(transientTransport),
		cacheTTL:  defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial spawns command as an MCP server speaking stdio, completes the
// protocol handshake, and returns a Client for it. env entries are KEY=VALUE
// pairs added to the child environment. The subprocess is terminated when
// the handshake fails, so a non-nil error never leaks a child process.
func Dial(ctx context.Context, command string, env, args []string, opts ...ClientOption) (*Client, error) {
	if command == "" {
		return nil, stderrors.New("mcp: command is required")
	}
	stdio, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: spawn %s: %w", command, err)
	}
	// The transport must outlive the dialing context; ctx bounds only the
	// handshake below.
	if err := stdio.Start(context.Background()); err != nil {
		_ = stdio.Close()
		return nil, fmt.Errorf("mcp: start %s: %w", command, err)
	}

	c := NewClient(stdio, opts...)

	initCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	if _, err := stdio.Initialize(initCtx, req); err != nil {
		_ = stdio.Close()
		return nil, fmt.Errorf("mcp: initialize %s: %w", command, err)
	}
	return c, nil
}

// ListTools returns the tools the server advertises, served from cache
// while the cache TTL holds.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}

	var tools []mcp.Tool
	err := c.retry.Do(ctx, func() error {
		reqCtx, cancel := c.requestContext(ctx)
		defer cancel()
		res, err := c.transport.ListTools(reqCtx, mcp.ListToolsRequest{})
		if err != nil {
			return err
		}
		tools = res.Tools
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(tools)
	return tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	err := c.retry.Do(ctx, func() error {
		reqCtx, cancel := c.requestContext(ctx)
		defer cancel()
		res, err := c.transport.CallTool(reqCtx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close terminates the server connection.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

// transientTransport keeps retry away from caller cancellation and request
// deadlines; everything else on the wire is worth another attempt.
func transientTransport(err error) bool {
	if err == nil {
		return false
	}
	return !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)
}
