// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jllopis/telos/pkg/cost"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/skills"
)

// Feedback is the evaluator verdict on one executed step.
type Feedback struct {
	// Usefulness grades the step's contribution toward the goal in [0, 1].
	Usefulness float64 `json:"usefulness"`

	// Continue reports whether the loop should keep iterating.
	Continue bool `json:"continue"`

	// GoalAchieved reports the goal as met. Forces Continue false.
	GoalAchieved bool `json:"goal_achieved"`

	// Rationale is the free-text reflection.
	Rationale string `json:"rationale,omitempty"`

	// MemoryUpdates holds key facts the evaluator wants persisted.
	MemoryUpdates map[string]string `json:"memory_updates,omitempty"`
}

// DefaultFeedback is the verdict used when evaluation fails: neutral
// usefulness, keep going.
func DefaultFeedback() Feedback {
	return Feedback{Usefulness: 0.5, Continue: true}
}

// Evaluator judges progress toward the goal after each step. history holds
// the formatted prior steps; outcome is the step being judged.
type Evaluator interface {
	Evaluate(ctx context.Context, goal, history string, outcome skills.StepOutcome) (Feedback, error)
}

// StaticEvaluator returns the same feedback for every step.
type StaticEvaluator struct {
	Feedback Feedback
}

// Evaluate implements Evaluator.
func (s StaticEvaluator) Evaluate(_ context.Context, _, _ string, _ skills.StepOutcome) (Feedback, error) {
	return s.Feedback, nil
}

const reflectionSystemPrompt = "You are an AI reflection agent that assesses progress toward goals and decides next actions."

// LLMEvaluator asks a language model to grade each step against the
// reflection grammar (USEFULNESS, GOAL_ACHIEVED, SHOULD_CONTINUE,
// REFLECTION, MEMORY_UPDATES).
type LLMEvaluator struct {
	provider llm.Provider
	model    string
	ledger   *cost.Ledger
}

// EvaluatorOption configures an LLMEvaluator.
type EvaluatorOption func(*LLMEvaluator)

// WithEvaluatorLedger tallies evaluator token usage in the given ledger.
func WithEvaluatorLedger(l *cost.Ledger) EvaluatorOption {
	return func(e *LLMEvaluator) { e.ledger = l }
}

// NewLLMEvaluator creates an evaluator backed by provider and model.
func NewLLMEvaluator(provider llm.Provider, model string, opts ...EvaluatorOption) *LLMEvaluator {
	e := &LLMEvaluator{provider: provider, model: model}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate grades one step. On provider or decode failure it returns
// DefaultFeedback alongside the error so the loop can log and keep going.
func (e *LLMEvaluator) Evaluate(ctx context.Context, goal, history string, outcome skills.StepOutcome) (Feedback, error) {
	if e.provider == nil {
		return DefaultFeedback(), errors.WrapCollaborator("evaluator", nil)
	}
	resp, err := e.provider.Chat(ctx, llm.ChatRequest{
		Model: e.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: reflectionSystemPrompt},
			{Role: llm.RoleUser, Content: reflectionPrompt(goal, history, outcome)},
		},
	})
	if err != nil {
		return DefaultFeedback(), errors.WrapCollaborator("language model", err)
	}
	if e.ledger != nil {
		e.ledger.AddUsage(resp.Usage)
	}
	fb, err := DecodeFeedback(resp.Content)
	if err != nil {
		return DefaultFeedback(), err
	}
	return fb, nil
}

func reflectionPrompt(goal, history string, outcome skills.StepOutcome) string {
	if history == "" {
		history = "(no steps yet)"
	}
	var b strings.Builder
	b.WriteString("Reflect on the current state of this agent task and decide the next action.\n\n")
	fmt.Fprintf(&b, "GOAL: %s\n\n", goal)
	fmt.Fprintf(&b, "STEP HISTORY:\n%s\n\n", history)
	fmt.Fprintf(&b, "LAST TOOL RESULT:\nCapability: %s\nSuccess: %t\nError: %s\nResult: %s\n\n",
		outcome.Capability, outcome.Success, outcome.Error, truncate(fmt.Sprint(outcome.Result), 2000))
	b.WriteString(`REFLECTION TASKS:
1. Assess how useful the last tool result was for achieving the goal (0.0-1.0)
2. Determine if the goal has been achieved
3. Decide whether to continue or stop
4. Identify any key insights or learnings
5. Suggest memory updates if relevant

Provide your reflection in this format:

USEFULNESS: [0.0-1.0 score]
GOAL_ACHIEVED: [yes/no]
SHOULD_CONTINUE: [yes/no]

REFLECTION:
[Your detailed analysis and reasoning]

MEMORY_UPDATES:
[key1: value1, key2: value2, ... or "none"]`)
	return b.String()
}

// DecodeFeedback parses the reflection grammar. A missing or malformed
// USEFULNESS line fails with a parse error; scores clamp to [0, 1].
// GOAL_ACHIEVED yes forces Continue false. An empty REFLECTION section
// falls back to the whole response.
func DecodeFeedback(text string) (Feedback, error) {
	fb := DefaultFeedback()
	sawScore := false
	section := ""
	var rationale []string
	updates := map[string]string{}

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "USEFULNESS:"):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, "USEFULNESS:")), 64)
			if err != nil {
				return DefaultFeedback(), errors.NewParseError("reflection", i+1, err)
			}
			fb.Usefulness = clamp01(v)
			sawScore = true
			section = ""
		case strings.HasPrefix(line, "GOAL_ACHIEVED:"):
			fb.GoalAchieved = strings.Contains(strings.ToLower(line), "yes")
			section = ""
		case strings.HasPrefix(line, "SHOULD_CONTINUE:"):
			fb.Continue = strings.Contains(strings.ToLower(line), "yes")
			section = ""
		case strings.HasPrefix(line, "NEXT_ACTION:"):
			// Follow-up actions come from the planner, not the evaluator.
			section = ""
		case strings.HasPrefix(line, "REFLECTION:"):
			section = "reflection"
		case strings.HasPrefix(line, "MEMORY_UPDATES:"):
			section = "memory"
			addMemoryPairs(updates, strings.TrimPrefix(line, "MEMORY_UPDATES:"))
		case section == "reflection" && line != "":
			rationale = append(rationale, line)
		case section == "memory" && line != "":
			addMemoryPairs(updates, line)
		}
	}
	if !sawScore {
		return DefaultFeedback(), errors.NewParseError("reflection", 0, fmt.Errorf("no USEFULNESS line found"))
	}
	if fb.GoalAchieved {
		fb.Continue = false
	}
	fb.Rationale = strings.Join(rationale, "\n")
	if fb.Rationale == "" {
		fb.Rationale = strings.TrimSpace(text)
	}
	if len(updates) > 0 {
		fb.MemoryUpdates = updates
	}
	return fb, nil
}

// addMemoryPairs parses "key1: value1, key2: value2" into updates. The
// words "none" and "no updates" mean no pairs; fragments without a colon
// are skipped.
func addMemoryPairs(updates map[string]string, s string) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "no updates":
		return
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			updates[k] = strings.TrimSpace(v)
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// truncate caps s at max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
