// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
)

// Capabilities lists the resolvable capability names. The skills registry
// satisfies it.
type Capabilities interface {
	Names() []string
}

// Builder produces a plan graph for a goal.
type Builder interface {
	BuildGraph(ctx context.Context, goal string) (*Graph, error)
}

// NextStepper suggests single follow-up steps once a plan is exhausted. A
// nil action with nil error means the goal is achieved and the loop should
// stop.
type NextStepper interface {
	SuggestNext(ctx context.Context, goal, history, lastResult string) (*NextAction, error)
}

// ChainBuilder proposes a deterministic candidate chain from goal keywords
// and keeps only candidates the registry resolves. Dropped candidates leave
// no hole: survivors chain directly, and a goal no candidate survives for
// yields an empty graph. It needs no language model, which makes it the
// offline fallback.
type ChainBuilder struct {
	caps Capabilities
}

// NewChainBuilder creates a builder over the resolvable capability set.
func NewChainBuilder(caps Capabilities) *ChainBuilder {
	return &ChainBuilder{caps: caps}
}

// BuildGraph builds the filtered candidate chain for the goal.
func (b *ChainBuilder) BuildGraph(_ context.Context, goal string) (*Graph, error) {
	allowed := make(map[string]bool)
	if b.caps != nil {
		for _, name := range b.caps.Names() {
			allowed[name] = true
		}
	}

	g := NewGraph()
	prev := ""
	kept := 0
	for _, step := range proposeSteps(goal) {
		if !allowed[step.Capability] {
			continue
		}
		kept++
		id := fmt.Sprintf("s%d", kept)
		if _, err := g.AddNode(Node{
			ID:         id,
			Capability: step.Capability,
			Args:       step.Args,
			Rationale:  step.Rationale,
		}); err != nil {
			return nil, err
		}
		if prev != "" {
			if err := g.AddEdge(prev, id); err != nil {
				return nil, err
			}
		}
		prev = id
	}
	return g, nil
}

func proposeSteps(goal string) []Step {
	if strings.Contains(strings.ToLower(goal), "save") {
		return []Step{
			{
				Capability: "web.fetch",
				Args:       map[string]any{"url": goalURL(goal), "max_chars": 5000},
				Rationale:  "collect the source material",
			},
			{
				Capability: "exec.run",
				Args:       map[string]any{"code": "print('Hello, World!')"},
				Rationale:  "transform the fetched content",
			},
			{
				Capability: "fs.write",
				Args:       map[string]any{"path": "brief.md", "content": "# Brief\n"},
				Rationale:  "persist the result to the workspace",
			},
		}
	}
	return []Step{
		{
			Capability: "rag.search",
			Args:       map[string]any{"query": goal, "k": 3},
			Rationale:  "look up relevant knowledge",
		},
	}
}

// goalURL pulls the first URL out of the goal text, defaulting when the
// goal names none.
func goalURL(goal string) string {
	for _, field := range strings.Fields(goal) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return strings.TrimRight(field, ".,;)")
		}
	}
	return "https://example.com"
}

// LLMBuilder asks the language model for a flat plan in the strict plan
// grammar and decodes it. Decode failures surface as PARSE_ERROR so the
// caller can fall back instead of running a garbage step.
type LLMBuilder struct {
	provider llm.Provider
	model    string
	tools    []llm.Tool
}

// NewLLMBuilder creates a model-backed plan builder. tools feeds the
// capability list into the planning prompt.
func NewLLMBuilder(provider llm.Provider, model string, tools []llm.Tool) *LLMBuilder {
	return &LLMBuilder{provider: provider, model: model, tools: tools}
}

const planSystemPrompt = "You are a planning agent that creates step-by-step plans to achieve goals using available capabilities."

// BuildPlan prompts the model and decodes the response as a flat plan.
func (b *LLMBuilder) BuildPlan(ctx context.Context, goal string) (*FlatPlan, error) {
	if b.provider == nil {
		return nil, errors.WrapCollaborator("planner", fmt.Errorf("no language model configured"))
	}
	resp, err := b.provider.Chat(ctx, llm.ChatRequest{
		Model: b.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: planSystemPrompt},
			{Role: llm.RoleUser, Content: b.planningPrompt(goal)},
		},
	})
	if err != nil {
		return nil, errors.WrapCollaborator("language model", err)
	}
	return DecodePlan(resp.Content)
}

// BuildGraph builds the flat plan and chains it linearly.
func (b *LLMBuilder) BuildGraph(ctx context.Context, goal string) (*Graph, error) {
	plan, err := b.BuildPlan(ctx, goal)
	if err != nil {
		return nil, err
	}
	return FromFlatPlan(plan)
}

const nextStepSystemPrompt = "You are an AI that suggests the next action to achieve a goal."

// SuggestNext asks the model for one react-style step given the run so far.
func (b *LLMBuilder) SuggestNext(ctx context.Context, goal, history, lastResult string) (*NextAction, error) {
	if b.provider == nil {
		return nil, errors.WrapCollaborator("planner", fmt.Errorf("no language model configured"))
	}
	resp, err := b.provider.Chat(ctx, llm.ChatRequest{
		Model: b.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: nextStepSystemPrompt},
			{Role: llm.RoleUser, Content: b.nextStepPrompt(goal, history, lastResult)},
		},
	})
	if err != nil {
		return nil, errors.WrapCollaborator("language model", err)
	}
	return DecodeNextAction(resp.Content)
}

func (b *LLMBuilder) nextStepPrompt(goal, history, lastResult string) string {
	names := make([]string, 0, len(b.tools))
	for _, tool := range b.tools {
		names = append(names, tool.Function.Name)
	}
	var sb strings.Builder
	sb.WriteString("Based on the current state, suggest the next action to progress toward the goal.\n\n")
	fmt.Fprintf(&sb, "Goal: %s\n\n", goal)
	fmt.Fprintf(&sb, "History:\n%s\n\n", history)
	fmt.Fprintf(&sb, "Last result: %s\n\n", lastResult)
	fmt.Fprintf(&sb, "Available capabilities: %s\n\n", strings.Join(names, ", "))
	sb.WriteString("Suggest the next capability to use and its input. If the goal appears to be achieved, respond with \"GOAL_ACHIEVED\".\n\n")
	sb.WriteString("Format your response as:\nTOOL: [capability name]\nINPUT: [input as a JSON object]\nRATIONALE: [brief explanation]")
	return sb.String()
}

func (b *LLMBuilder) planningPrompt(goal string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a step-by-step plan to achieve this goal: %s\n\n", goal)
	sb.WriteString("Available capabilities:\n")
	for _, tool := range b.tools {
		desc := tool.Function.Description
		if desc == "" {
			desc = "no description available"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Function.Name, desc)
	}
	sb.WriteString(`
Planning requirements:
1. Break the goal into specific, actionable steps.
2. Each step uses exactly one capability.
3. Give each step its input as a JSON object.
4. Explain the rationale for each step.
5. Consider dependencies between steps.

Return the plan in this format:

OVERALL RATIONALE: [overall approach and strategy]

STEPS:
Step 1: [capability name]
Input: [input as a JSON object]
Rationale: [why this step is needed]

Step 2: [capability name]
Input: [input as a JSON object]
Rationale: [why this step is needed]
`)
	return sb.String()
}
