// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/telos/pkg/skills"
)

// Server publishes registry skills over the Model Context Protocol, so
// another MCP-speaking agent can call this process's capabilities.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server identifying itself with name and version.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version),
	}
}

// PublishSkill exposes one skill as an MCP tool. Arguments are validated
// against the skill's schema before execution; violations and execution
// errors come back as tool error results, never as protocol errors.
func (s *Server) PublishSkill(sk skills.Skill) {
	tool := mcp.NewTool(sk.Name(), mcp.WithDescription(sk.Description()))

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		if details := skills.ValidateArgs(sk.Schema(), args); len(details) > 0 {
			return errorResult("invalid arguments: " + strings.Join(details, "; ")), nil
		}
		out, err := sk.Execute(ctx, args)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(formatOutput(out)), nil
	})
}

// PublishRegistry exposes every resolvable skill in the registry and
// returns how many were published.
func (s *Server) PublishRegistry(reg *skills.Registry) int {
	count := 0
	for _, name := range reg.Names() {
		sk, err := reg.Resolve(name)
		if err != nil {
			continue
		}
		s.PublishSkill(sk)
		count++
	}
	return count
}

// ServeStdio serves the published tools on stdin/stdout until the peer
// disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

// formatOutput renders a skill result for the text content slot: strings
// pass through, everything else is rendered as JSON.
func formatOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
