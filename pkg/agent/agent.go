// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent runs the plan/act/reflect loop. An Agent turns a goal into
// a plan graph, executes ready steps through the capability registry under
// governance, reflects on every outcome, and classifies the run when the
// loop stops.
package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/cost"
	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/planner"
	"github.com/jllopis/telos/pkg/skills"
	"github.com/jllopis/telos/pkg/trace"
)

const (
	// DefaultMaxSteps bounds the loop when no limit is configured.
	DefaultMaxSteps = 8

	// DefaultSuccessThreshold is the usefulness a step must exceed for
	// the run to classify as success.
	DefaultSuccessThreshold = 0.8

	// DefaultPace is the minimum delay between loop iterations.
	DefaultPace = 100 * time.Millisecond
)

// ErrMissingRegistry is returned by New when no capability registry is set.
var ErrMissingRegistry = errors.New("agent: capability registry is required")

// Agent drives one goal at a time through plan, act and reflect phases.
// Construct with New; the zero value is not usable. An Agent is safe for
// sequential reuse but a single Run owns the configured graph, so share
// one agent across concurrent runs only with per-run graphs built by the
// planner.
type Agent struct {
	registry  *skills.Registry
	gate      *governance.Gate
	ledger    *cost.Ledger
	traces    *trace.Writer
	sessions  memory.SessionStore
	builder   planner.Builder
	graph     *planner.Graph
	evaluator Evaluator
	maxSteps  int
	threshold float64
	pacer     Pacer
	failFast  bool
	emitter   core.EventEmitter
	logger    *slog.Logger

	chatProvider llm.Provider
	chatModel    string
	library      *memory.Library
	sessionID    string
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New assembles an agent. A capability registry is required; everything
// else has working defaults: eight steps, a 0.8 success threshold, a
// 100ms pacer, a fresh cost ledger, and an evaluator that always
// continues with neutral usefulness.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{
		maxSteps:  DefaultMaxSteps,
		threshold: DefaultSuccessThreshold,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.registry == nil {
		return nil, ErrMissingRegistry
	}
	if a.ledger == nil {
		a.ledger = cost.NewLedger()
	}
	if a.evaluator == nil {
		a.evaluator = StaticEvaluator{Feedback: DefaultFeedback()}
	}
	if a.pacer == nil {
		a.pacer = NewRatePacer(DefaultPace)
	}
	if a.emitter == nil {
		a.emitter = core.NoopEventEmitter{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// WithRegistry sets the capability registry steps execute against.
func WithRegistry(r *skills.Registry) Option {
	return func(a *Agent) error {
		a.registry = r
		return nil
	}
}

// WithGate routes every step through a governance gate before execution.
// Without a gate all steps are allowed.
func WithGate(g *governance.Gate) Option {
	return func(a *Agent) error {
		a.gate = g
		return nil
	}
}

// WithLedger shares a cost ledger with the agent. Useful when the same
// ledger also tallies evaluator token usage.
func WithLedger(l *cost.Ledger) Option {
	return func(a *Agent) error {
		a.ledger = l
		return nil
	}
}

// WithTraceWriter persists every loop event to per-run trace files.
func WithTraceWriter(w *trace.Writer) Option {
	return func(a *Agent) error {
		a.traces = w
		return nil
	}
}

// WithSessions records messages, tool events and reflections in a
// session store.
func WithSessions(s memory.SessionStore) Option {
	return func(a *Agent) error {
		a.sessions = s
		return nil
	}
}

// WithSessionID records runs under a caller-chosen session instead of one
// named after the run id.
func WithSessionID(id string) Option {
	return func(a *Agent) error {
		a.sessionID = id
		return nil
	}
}

// WithBuilder sets the planner that turns goals into graphs. A builder
// that also implements planner.NextStepper keeps suggesting follow-up
// steps after the plan is exhausted.
func WithBuilder(b planner.Builder) Option {
	return func(a *Agent) error {
		a.builder = b
		return nil
	}
}

// WithGraph runs a pre-built plan instead of building one from the goal.
// Takes precedence over WithBuilder.
func WithGraph(g *planner.Graph) Option {
	return func(a *Agent) error {
		a.graph = g
		return nil
	}
}

// WithFeedback replaces the evaluator consulted after every step.
func WithFeedback(e Evaluator) Option {
	return func(a *Agent) error {
		a.evaluator = e
		return nil
	}
}

// WithMaxSteps bounds the number of loop iterations. Zero or negative
// means the loop never executes a step and the run classifies as failure.
func WithMaxSteps(n int) Option {
	return func(a *Agent) error {
		a.maxSteps = n
		return nil
	}
}

// WithSuccessThreshold sets the usefulness a step must exceed for the run
// to classify as success.
func WithSuccessThreshold(v float64) Option {
	return func(a *Agent) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("agent: success threshold %v out of range [0,1]", v)
		}
		a.threshold = v
		return nil
	}
}

// WithPacer sets the delay source between loop iterations.
func WithPacer(p Pacer) Option {
	return func(a *Agent) error {
		a.pacer = p
		return nil
	}
}

// WithFailFast skips every dependent of a failed step instead of letting
// the plan stall.
func WithFailFast(on bool) Option {
	return func(a *Agent) error {
		a.failFast = on
		return nil
	}
}

// WithEmitter streams semantic loop events to an emitter.
func WithEmitter(e core.EventEmitter) Option {
	return func(a *Agent) error {
		a.emitter = e
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) error {
		a.logger = l
		return nil
	}
}

// WithChatModel enables the conversational entrypoint (Chat) backed by
// the given provider and model.
func WithChatModel(p llm.Provider, model string) Option {
	return func(a *Agent) error {
		a.chatProvider = p
		a.chatModel = model
		return nil
	}
}

// WithLibrary enriches Chat answers with semantic search hits from the
// document library.
func WithLibrary(lib *memory.Library) Option {
	return func(a *Agent) error {
		a.library = lib
		return nil
	}
}
