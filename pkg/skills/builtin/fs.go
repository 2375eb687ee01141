// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/safety"
)

// ReadSkill reads a UTF-8 text file from inside the workspace.
type ReadSkill struct {
	ws *safety.Workspace
}

// NewReadSkill builds the fs.read capability over a workspace.
func NewReadSkill(ws *safety.Workspace) *ReadSkill {
	return &ReadSkill{ws: ws}
}

func (s *ReadSkill) Name() string { return "fs.read" }

func (s *ReadSkill) Description() string {
	return "Read a UTF-8 text file from the agent workspace."
}

func (s *ReadSkill) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the workspace root",
			},
		},
		"required":             []string{"path"},
		"additionalProperties": false,
	}
}

func (s *ReadSkill) Execute(_ context.Context, args map[string]any) (any, error) {
	path := stringArg(args, "path")
	abs, err := s.ws.Resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound, "file not found", err).
				WithContext("path", path)
		}
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, errors.New(errors.CodeInvalidArguments, "file is not valid utf-8", nil).
			WithContext("path", path)
	}

	return map[string]any{
		"content":  string(data),
		"path":     path,
		"size":     len(data),
		"encoding": "utf-8",
	}, nil
}

// WriteSkill writes a UTF-8 text file inside the workspace, creating parent
// directories as needed.
type WriteSkill struct {
	ws *safety.Workspace
}

// NewWriteSkill builds the fs.write capability over a workspace.
func NewWriteSkill(ws *safety.Workspace) *WriteSkill {
	return &WriteSkill{ws: ws}
}

func (s *WriteSkill) Name() string { return "fs.write" }

func (s *WriteSkill) Description() string {
	return "Write a UTF-8 text file into the agent workspace."
}

func (s *WriteSkill) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the workspace root",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Text content to write",
			},
			"encoding": map[string]any{
				"type":        "string",
				"description": "Text encoding; only utf-8 is supported",
			},
		},
		"required":             []string{"path", "content"},
		"additionalProperties": false,
	}
}

func (s *WriteSkill) Execute(_ context.Context, args map[string]any) (any, error) {
	if enc, ok := args["encoding"].(string); ok && !strings.EqualFold(enc, "utf-8") {
		return nil, errors.New(errors.CodeInvalidArguments, "only utf-8 encoding is supported", nil).
			WithContext("encoding", enc)
	}

	path := stringArg(args, "path")
	content := stringArg(args, "content")

	abs, err := s.ws.Resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, err
	}

	return map[string]any{
		"path":     path,
		"size":     len(content),
		"encoding": "utf-8",
	}, nil
}
