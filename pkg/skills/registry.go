// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/telemetry"
)

// Registry resolves capability names to executable skills. Duplicate
// registrations are rejected rather than overwritten, so a capability name
// means the same thing for the whole life of the process.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
	allow  map[string]struct{}
	tracer trace.Tracer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithAllowList restricts the registry to the given capability names. Names
// outside a non-empty allow-list are dropped at registration time and never
// become resolvable. An empty list leaves the registry unrestricted.
func WithAllowList(names []string) RegistryOption {
	return func(r *Registry) {
		if len(names) == 0 {
			return
		}
		r.allow = make(map[string]struct{}, len(names))
		for _, name := range names {
			r.allow[name] = struct{}{}
		}
	}
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		skills: make(map[string]Skill),
		tracer: otel.Tracer("telos/skills"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a skill under its name. A second registration of the same
// name fails with DUPLICATE_CAPABILITY. A skill outside the allow-list is
// dropped silently: registration succeeds but the name never resolves.
func (r *Registry) Register(s Skill) error {
	name := s.Name()
	if r.allow != nil {
		if _, ok := r.allow[name]; !ok {
			slog.Default().Debug("skills.register.dropped",
				slog.String("capability", name),
			)
			return nil
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[name]; exists {
		return errors.NewDuplicateCapability(name)
	}
	r.skills[name] = s
	return nil
}

// Resolve returns the skill registered under name, or UNKNOWN_CAPABILITY.
func (r *Registry) Resolve(name string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	if !ok {
		return nil, errors.NewUnknownCapability(name)
	}
	return s, nil
}

// Names returns the resolvable capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns tool definitions for every registered skill, sorted
// by name, for planner prompting.
func (r *Registry) Definitions() []llm.Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, ToolDefinition(r.skills[name]))
	}
	return tools
}

// Execute resolves name, validates args against the skill's schema, and
// invokes the skill. Every fault — unknown capability, invalid arguments,
// an error or panic from the skill itself — comes back as a failed
// StepOutcome; no fault crosses this boundary into the scheduler.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) StepOutcome {
	outcome := StepOutcome{Capability: name, Args: args}

	s, err := r.Resolve(name)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if details := ValidateArgs(s.Schema(), args); len(details) > 0 {
		outcome.Error = errors.NewInvalidArguments(name, details).Error()
		return outcome
	}

	start := time.Now()
	execCtx, span := r.tracer.Start(ctx, "Registry.Execute")
	result, err := invoke(execCtx, s, args)
	latencyMs := time.Since(start).Seconds() * 1000
	span.SetAttributes(telemetry.ToolCallAttributes(name, "", "registry", latencyMs, err == nil)...)
	span.SetAttributes(telemetry.ToolCallArgsResult(fmt.Sprint(args), fmt.Sprint(result), 500)...)
	span.End()

	if m, merr := telemetry.Loop(); merr == nil {
		m.RecordStep(ctx, name, err == nil, latencyMs)
	}

	if err != nil {
		outcome.Error = err.Error()
		slog.Default().Warn("skills.execute.failed",
			slog.String("capability", name),
			slog.String("error", err.Error()),
		)
		return outcome
	}
	outcome.Success = true
	outcome.Result = result
	return outcome
}

// invoke runs the skill with panic recovery so a buggy capability cannot
// take down the loop.
func invoke(ctx context.Context, s Skill, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("capability panicked: %v", rec)
		}
	}()
	return s.Execute(ctx, args)
}
