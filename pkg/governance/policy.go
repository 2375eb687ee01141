// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"path"
	"strings"
)

// ActionType describes the kind of action a rule evaluates.
type ActionType string

const (
	ActionCapability ActionType = "capability"
	ActionMCP        ActionType = "mcp"
)

// Action describes a decision target: one capability invocation in one run.
type Action struct {
	Type   ActionType
	Name   string
	RunID  string
	StepID string
	Args   map[string]any
}

// DecisionStatus captures the policy outcome.
type DecisionStatus string

const (
	DecisionAllow DecisionStatus = "allow"
	DecisionDeny  DecisionStatus = "deny"
	DecisionAsk   DecisionStatus = "ask"
)

// Decision is the outcome of evaluating an action. When Status is ask,
// ItemID names the approval item blocking the step.
type Decision struct {
	Status DecisionStatus
	Reason string
	RuleID string
	ItemID string
}

// Allowed reports whether the action may proceed without approval.
func (d Decision) Allowed() bool { return d.Status == DecisionAllow }

// Denied reports whether the action is forbidden outright.
func (d Decision) Denied() bool { return d.Status == DecisionDeny }

// NeedsApproval reports whether the action is blocked on a human decision.
func (d Decision) NeedsApproval() bool { return d.Status == DecisionAsk }

// Rule is a single policy rule. Pattern is a path.Match glob over the
// capability name; an empty pattern matches everything.
type Rule struct {
	ID      string
	Effect  DecisionStatus
	Type    ActionType
	Pattern string
	Reason  string
}

// RuleSet evaluates rules in order; the first match wins. Actions nothing
// matches fall through to the default decision (allow).
type RuleSet struct {
	rules      []Rule
	defaultDec Decision
}

// NewRuleSet creates a rule set with a default allow decision.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{
		rules:      append([]Rule(nil), rules...),
		defaultDec: Decision{Status: DecisionAllow},
	}
}

// RulesFromConfig compiles the configured risky capability names into ask
// rules. Explicit rules may be appended afterwards via Append.
func RulesFromConfig(risky []string) *RuleSet {
	rules := make([]Rule, 0, len(risky))
	for _, name := range risky {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		rules = append(rules, Rule{
			ID:      "risky:" + name,
			Effect:  DecisionAsk,
			Type:    ActionCapability,
			Pattern: name,
			Reason:  "capability is listed as risky",
		})
	}
	return NewRuleSet(rules)
}

// Append adds rules behind the existing ones (lower precedence).
func (r *RuleSet) Append(rules ...Rule) {
	r.rules = append(r.rules, rules...)
}

// Evaluate checks rules in order and returns the first match.
func (r *RuleSet) Evaluate(_ context.Context, action Action) Decision {
	for _, rule := range r.rules {
		if rule.Type != "" && rule.Type != action.Type {
			continue
		}
		if !matchPattern(rule.Pattern, action.Name) {
			continue
		}
		status := rule.Effect
		switch status {
		case DecisionAllow, DecisionDeny, DecisionAsk:
		default:
			status = DecisionDeny
		}
		return Decision{Status: status, Reason: rule.Reason, RuleID: rule.ID}
	}
	return r.defaultDec
}

func matchPattern(pattern, value string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, value)
	if err == nil && ok {
		return true
	}
	return pattern == value
}
