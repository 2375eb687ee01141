// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Telos spans and metrics. LLM keys follow the
// OpenTelemetry gen_ai conventions; everything else is namespaced under
// telos.
const (
	// Run attributes
	AttrRunID     = "telos.run.id"
	AttrRunGoal   = "telos.run.goal"
	AttrRunStatus = "telos.run.status"
	AttrRunSteps  = "telos.run.steps"

	// Step/tool attributes
	AttrToolName       = "telos.tool.name"
	AttrToolCallID     = "telos.tool.call_id"
	AttrToolArgs       = "telos.tool.arguments"
	AttrToolResult     = "telos.tool.result"
	AttrToolDurationMs = "telos.tool.duration_ms"
	AttrToolSuccess    = "telos.tool.success"
	AttrToolSource     = "telos.tool.source" // "registry", "mcp"

	// Approval attributes
	AttrApprovalID     = "telos.approval.id"
	AttrApprovalStatus = "telos.approval.status"

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
)

// RunAttributes returns common attributes for run-scoped spans. The goal is
// truncated so oversized prompts never bloat the span.
func RunAttributes(runID, goal, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
	}
	if goal != "" {
		if len(goal) > 200 {
			goal = goal[:200] + "..."
		}
		attrs = append(attrs, attribute.String(AttrRunGoal, goal))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(AttrRunStatus, status))
	}
	return attrs
}

// ToolCallAttributes returns attributes for a capability execution span.
func ToolCallAttributes(name, callID, source string, durationMs float64, success bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolSource, source),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrToolCallID, callID))
	}
	return attrs
}

// ToolCallArgsResult returns argument and result attributes, truncated so
// large payloads never land in the trace backend verbatim.
func ToolCallArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{}
	if args != "" {
		if len(args) > maxLen {
			args = args[:maxLen] + "..."
		}
		attrs = append(attrs, attribute.String(AttrToolArgs, args))
	}
	if result != "" {
		if len(result) > maxLen {
			result = result[:maxLen] + "..."
		}
		attrs = append(attrs, attribute.String(AttrToolResult, result))
	}
	return attrs
}

// ApprovalAttributes returns attributes for approval gate spans.
func ApprovalAttributes(id, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if id != "" {
		attrs = append(attrs, attribute.String(AttrApprovalID, id))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(AttrApprovalStatus, status))
	}
	return attrs
}

// LLMAttributes returns attributes for language model call spans.
func LLMAttributes(model, provider string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	return attrs
}
