// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills holds the capability registry: named, schema-validated
// executable units the scheduler dispatches plan steps to. Capabilities are
// registered explicitly at setup; after that the table is read-mostly and
// safe for concurrent use.
package skills

import (
	"context"

	"github.com/jllopis/telos/pkg/llm"
)

// Skill is one named capability. Schema describes the arguments Execute
// accepts as a JSON Schema object; a nil schema accepts any arguments.
type Skill interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// StepOutcome is the result of executing one unit of work. The registry
// produces exactly one per Execute call; the feedback evaluator and the
// run trace consume it.
type StepOutcome struct {
	Capability string         `json:"capability"`
	Args       map[string]any `json:"args,omitempty"`
	Success    bool           `json:"success"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Func adapts a plain function into a Skill.
type Func struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunc builds a Skill from a function. schema may be nil for capabilities
// that accept arbitrary arguments.
func NewFunc(name, description string, schema map[string]any, fn func(ctx context.Context, args map[string]any) (any, error)) *Func {
	return &Func{name: name, description: description, schema: schema, fn: fn}
}

// Name returns the capability name.
func (f *Func) Name() string { return f.name }

// Description returns the capability description.
func (f *Func) Description() string { return f.description }

// Schema returns the argument schema.
func (f *Func) Schema() map[string]any { return f.schema }

// Execute invokes the wrapped function.
func (f *Func) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f.fn(ctx, args)
}

// ToolDefinition exposes a skill as an llm.Tool so the planner can offer it
// to the model for tool calling.
func ToolDefinition(s Skill) llm.Tool {
	params := s.Schema()
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        s.Name(),
			Description: s.Description(),
			Parameters:  params,
		},
	}
}
