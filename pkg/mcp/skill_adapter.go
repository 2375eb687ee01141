// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/skills"
)

// ToolCaller abstracts tool execution so adapters can be exercised without
// a live server. *Client satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// SkillAdapter exposes one remote MCP tool as a registry skill. The tool's
// input schema passes through Schema() unchanged, so the registry validates
// arguments before they ever reach the wire.
type SkillAdapter struct {
	tool   mcp.Tool
	caller ToolCaller
	name   string
	schema map[string]any
}

// AdapterOption customizes a SkillAdapter.
type AdapterOption func(*SkillAdapter)

// WithNamePrefix namespaces the capability as "prefix.tool" so tools from
// different servers cannot collide in one registry.
func WithNamePrefix(prefix string) AdapterOption {
	return func(a *SkillAdapter) {
		if prefix != "" {
			a.name = prefix + "." + a.tool.Name
		}
	}
}

// NewSkillAdapter wraps an MCP tool definition and its caller as a skill.
func NewSkillAdapter(tool mcp.Tool, caller ToolCaller, opts ...AdapterOption) (*SkillAdapter, error) {
	if tool.Name == "" {
		return nil, stderrors.New("mcp: tool name is required")
	}
	if caller == nil {
		return nil, stderrors.New("mcp: tool caller is required")
	}
	a := &SkillAdapter{
		tool:   tool,
		caller: caller,
		name:   tool.Name,
		schema: decodeSchema(tool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Name returns the capability name, prefixed when the adapter was namespaced.
func (a *SkillAdapter) Name() string { return a.name }

// Description returns the tool's advertised description.
func (a *SkillAdapter) Description() string { return a.tool.Description }

// Schema returns the tool's input schema as a plain object, or nil when the
// server advertised none that decodes; a nil schema accepts any arguments.
func (a *SkillAdapter) Schema() map[string]any { return a.schema }

// Execute calls the remote tool. Transport failures come back as
// COLLABORATOR_UNAVAILABLE; a tool-level error result becomes a plain error
// carrying the server's message.
func (a *SkillAdapter) Execute(ctx context.Context, args map[string]any) (any, error) {
	result, err := a.caller.CallTool(ctx, a.tool.Name, args)
	if err != nil {
		return nil, errors.WrapCollaborator("mcp server", err)
	}
	return resultOutput(result)
}

// decodeSchema prefers the raw schema bytes when the server sent them and
// falls back to the structured form otherwise.
func decodeSchema(tool mcp.Tool) map[string]any {
	raw := []byte(tool.RawInputSchema)
	if len(raw) == 0 {
		encoded, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil
		}
		raw = encoded
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	return schema
}

func resultOutput(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, stderrors.New("mcp: nil tool result")
	}
	if result.IsError {
		return nil, fmt.Errorf("mcp tool failed: %s", textContent(result.Content))
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if text := textContent(result.Content); text != "" {
		return text, nil
	}
	return result, nil
}

func textContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ skills.Skill = (*SkillAdapter)(nil)
