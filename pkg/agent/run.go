// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/llm"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/planner"
	"github.com/jllopis/telos/pkg/skills"
	"github.com/jllopis/telos/pkg/telemetry"
)

// Result is the terminal outcome of one run.
type Result struct {
	RunID  string           `json:"run_id"`
	Status core.RunStatus   `json:"status"`
	Steps  []StepRecord     `json:"steps"`
	Cost   map[string]int64 `json:"cost"`
	Answer string           `json:"answer"`
}

// StepRecord captures one executed plan node with its outcome and verdict.
type StepRecord struct {
	Node     planner.Node       `json:"node"`
	Outcome  skills.StepOutcome `json:"outcome"`
	Feedback Feedback           `json:"feedback"`
	At       time.Time          `json:"at"`
}

// runState is the mutable loop state for one run.
type runState struct {
	run     *core.Run
	graph   *planner.Graph
	steps   []StepRecord
	state   string
	stopped bool
}

// Run executes one goal to a terminal status: build the plan, execute
// ready nodes through the registry under governance, reflect after each
// step, then classify. The returned Result always carries a terminal
// status, even when err is non-nil.
func (a *Agent) Run(ctx context.Context, goal string) (*Result, error) {
	run := core.NewRun(goal)
	run.SessionID = run.ID
	if a.sessionID != "" {
		run.SessionID = a.sessionID
	}
	ctx = core.WithRunID(ctx, run.ID)
	start := time.Now()

	a.logger.Info("agent.run.start",
		slog.String("run_id", run.ID),
		slog.String("goal", goal),
	)
	a.emit(ctx, run.ID, core.EventRunStart, map[string]any{"goal": goal})
	a.openSession(ctx, run)

	st := &runState{run: run, state: "Starting task with goal: " + goal}

	graph, err := a.plan(ctx, goal)
	if err != nil {
		a.logger.Error("agent.plan.error",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		GetErrorMetrics().RecordError(ctx, err, "agent-planner")
		a.emit(ctx, run.ID, core.EventRunError, map[string]any{"stage": "plan", "error": err.Error()})
		return a.finish(ctx, st, start, err)
	}
	st.graph = graph
	if a.failFast {
		graph.SetFailFast(true)
	}
	a.emit(ctx, run.ID, core.EventPlanStart, map[string]any{"steps": len(graph.Nodes())})
	a.logPlan(ctx, st)
	run.Iterate()

	for len(st.steps) < a.maxSteps {
		if ctx.Err() != nil {
			st.stopped = true
			break
		}
		node, err := a.pick(ctx, st)
		if err != nil {
			GetErrorMetrics().RecordError(ctx, err, "agent-loop")
			a.emit(ctx, run.ID, core.EventRunError, map[string]any{"stage": "pick", "error": err.Error()})
			return a.finish(ctx, st, start, err)
		}
		if node == nil {
			break
		}
		rec := a.step(ctx, st, node)
		st.steps = append(st.steps, rec)
		st.state = fmt.Sprintf("%s\nLast action %s: %s",
			st.state, actionWord(rec.Outcome.Success), truncate(rec.Feedback.Rationale, 200))
		if rec.Feedback.GoalAchieved || !rec.Feedback.Continue {
			break
		}
		if len(st.steps) >= a.maxSteps {
			break
		}
		if err := a.pacer.Wait(ctx); err != nil {
			st.stopped = true
			break
		}
	}
	return a.finish(ctx, st, start, nil)
}

// plan resolves the graph for this run: an explicit graph wins, then the
// builder. No planner at all yields an empty graph, which terminates with
// zero steps.
func (a *Agent) plan(ctx context.Context, goal string) (*planner.Graph, error) {
	if a.graph != nil {
		return a.graph, nil
	}
	if a.builder == nil {
		return planner.NewGraph(), nil
	}
	return a.builder.BuildGraph(ctx, goal)
}

// pick returns the next node to execute, growing the plan with react-style
// follow-ups once the graph completes cleanly. A nil node with nil error
// ends the loop.
func (a *Agent) pick(ctx context.Context, st *runState) (*planner.Node, error) {
	if ready := st.graph.NextReady(); len(ready) > 0 {
		return ready[0], nil
	}
	counts := st.graph.Counts()
	if counts[planner.StatusFailed] > 0 || counts[planner.StatusSkipped] > 0 {
		// A failed branch stalls the rest of the plan; stop rather than
		// improvise around it.
		return nil, nil
	}
	if !st.graph.Terminal() {
		return nil, errors.NewPlanExhausted(st.run.ID)
	}
	return a.react(ctx, st)
}

// react asks the builder for a follow-up step once every planned node is
// done. A nil suggestion means the goal is achieved; suggestion failures
// end the loop instead of failing the run.
func (a *Agent) react(ctx context.Context, st *runState) (*planner.Node, error) {
	stepper, ok := a.builder.(planner.NextStepper)
	if !ok {
		return nil, nil
	}
	action, err := stepper.SuggestNext(ctx, st.run.Goal, reactHistory(st.steps), st.state)
	if err != nil {
		a.logger.Warn("agent.react.error",
			slog.String("run_id", st.run.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if action == nil {
		return nil, nil
	}
	_, err = st.graph.AddNode(planner.Node{
		ID:         fmt.Sprintf("r%d", len(st.steps)+1),
		Capability: action.Capability,
		Args:       action.Args,
		Rationale:  action.Rationale,
	})
	if err != nil {
		a.logger.Warn("agent.react.error",
			slog.String("run_id", st.run.ID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	ready := st.graph.NextReady()
	if len(ready) == 0 {
		return nil, nil
	}
	return ready[0], nil
}

// step executes one node: governance check, registry dispatch, cost and
// audit recording, then evaluation. Every fault becomes a failed outcome
// on the record; nothing here aborts the run.
func (a *Agent) step(ctx context.Context, st *runState, node *planner.Node) StepRecord {
	if err := st.graph.MarkRunning(node.ID); err != nil {
		a.logger.Warn("agent.step.transition_error",
			slog.String("run_id", st.run.ID),
			slog.String("node_id", node.ID),
			slog.String("error", err.Error()),
		)
	}

	var outcome skills.StepOutcome
	if blocked := a.authorize(ctx, st, node); blocked != nil {
		outcome = *blocked
	} else {
		outcome = a.registry.Execute(ctx, node.Capability, node.Args)
	}
	a.ledger.AddStep()
	st.run.Steps = len(st.steps) + 1

	payload := map[string]any{
		"step_id":    node.ID,
		"capability": node.Capability,
		"args":       node.Args,
		"success":    outcome.Success,
	}
	if outcome.Success {
		payload["result"] = truncate(fmt.Sprint(outcome.Result), 500)
	} else {
		payload["error"] = outcome.Error
	}
	a.emit(ctx, st.run.ID, core.EventToolCall, payload)
	a.recordToolEvent(ctx, st, node, outcome)

	fb := a.evaluate(ctx, st, outcome)
	a.emit(ctx, st.run.ID, core.EventReflection, map[string]any{
		"step":            len(st.steps) + 1,
		"usefulness":      fb.Usefulness,
		"should_continue": fb.Continue,
		"goal_achieved":   fb.GoalAchieved,
	})
	a.recordReflection(ctx, st, fb)

	var markErr error
	if outcome.Success {
		markErr = st.graph.MarkDone(node.ID)
	} else {
		markErr = st.graph.MarkFailed(node.ID)
	}
	if markErr != nil {
		a.logger.Warn("agent.step.transition_error",
			slog.String("run_id", st.run.ID),
			slog.String("node_id", node.ID),
			slog.String("error", markErr.Error()),
		)
	}

	return StepRecord{Node: *node, Outcome: outcome, Feedback: fb, At: time.Now().UTC()}
}

// authorize runs the governance check. A nil return means the step may
// execute; otherwise the returned outcome is the failed step. Execution
// never occurs on deny, rejection, or approval timeout.
func (a *Agent) authorize(ctx context.Context, st *runState, node *planner.Node) *skills.StepOutcome {
	if a.gate == nil {
		return nil
	}
	decision := a.gate.Check(ctx, governance.Action{
		Type:   governance.ActionCapability,
		Name:   node.Capability,
		RunID:  st.run.ID,
		StepID: node.ID,
		Args:   node.Args,
	})
	switch {
	case decision.Denied():
		a.logger.Warn("agent.governance.denied",
			slog.String("run_id", st.run.ID),
			slog.String("capability", node.Capability),
			slog.String("rule_id", decision.RuleID),
		)
		return &skills.StepOutcome{
			Capability: node.Capability,
			Args:       node.Args,
			Error:      "policy denied: " + decision.Reason,
		}
	case decision.NeedsApproval():
		a.emit(ctx, st.run.ID, core.EventApprovalRequested, map[string]any{
			"item_id":    decision.ItemID,
			"capability": node.Capability,
			"step_id":    node.ID,
		})
		err := a.gate.Wait(ctx, decision.ItemID)
		resolved := map[string]any{
			"item_id":  decision.ItemID,
			"approved": err == nil,
		}
		if err != nil {
			resolved["reason"] = err.Error()
		}
		a.emit(ctx, st.run.ID, core.EventApprovalResolved, resolved)
		if err != nil {
			return &skills.StepOutcome{
				Capability: node.Capability,
				Args:       node.Args,
				Error:      err.Error(),
			}
		}
	}
	return nil
}

// evaluate consults the evaluator. Evaluators return a usable fallback
// alongside any error, so a failure degrades to that verdict after a log
// line.
func (a *Agent) evaluate(ctx context.Context, st *runState, outcome skills.StepOutcome) Feedback {
	fb, err := a.evaluator.Evaluate(ctx, st.run.Goal, stepHistory(st.steps), outcome)
	if err != nil {
		a.logger.Warn("agent.reflection.error",
			slog.String("run_id", st.run.ID),
			slog.String("error", err.Error()),
		)
		// The degraded verdict keeps the loop going, which counts as a
		// recovery.
		GetErrorMetrics().RecordError(ctx, err, "agent-evaluator")
		GetErrorMetrics().RecordRecovery(ctx, errors.AsTelosError(err).Code)
	}
	return fb
}

// finish classifies the run, stamps the terminal status, and flushes the
// final event and session message. cause, when non-nil, forces failure and
// is returned to the caller.
func (a *Agent) finish(ctx context.Context, st *runState, start time.Time, cause error) (*Result, error) {
	status, answer := a.classify(st)
	errMsg := ""
	if cause != nil {
		status = core.RunStatusFailure
		answer = "Task failed to achieve goal"
		errMsg = cause.Error()
	}
	st.run.Steps = len(st.steps)
	st.run.Finish(status, errMsg)

	result := &Result{
		RunID:  st.run.ID,
		Status: status,
		Steps:  st.steps,
		Cost:   a.ledger.Snapshot(),
		Answer: answer,
	}

	if m, err := telemetry.Loop(); err == nil {
		m.RecordRun(ctx, string(status), len(st.steps))
	}
	a.emit(ctx, st.run.ID, core.EventRunDone, map[string]any{
		"status": string(status),
		"steps":  len(st.steps),
		"cost":   result.Cost,
	})
	a.logger.Info("agent.run.done",
		slog.String("run_id", st.run.ID),
		slog.String("status", string(status)),
		slog.Int("steps", len(st.steps)),
		slog.Float64("duration_ms", time.Since(start).Seconds()*1000),
	)
	a.closeSession(ctx, st, status, answer)
	return result, cause
}

// classify maps the loop exit to a terminal status. Exhausting max steps
// dominates: a high-usefulness step on the final iteration still stops.
// Zero steps without an external stop is a failure, covering the
// max steps <= 0 boundary and empty plans.
func (a *Agent) classify(st *runState) (core.RunStatus, string) {
	if len(st.steps) == 0 && !st.stopped {
		return core.RunStatusFailure, "Task failed to achieve goal"
	}
	if st.stopped || len(st.steps) >= a.maxSteps {
		return core.RunStatusStopped, fmt.Sprintf("Task stopped after %d steps", len(st.steps))
	}
	for _, rec := range st.steps {
		if rec.Feedback.Usefulness > a.threshold {
			return core.RunStatusSuccess, "Task completed successfully"
		}
	}
	return core.RunStatusFailure, "Task failed to achieve goal"
}

// emit fans one event out to the trace writer and the emitter.
func (a *Agent) emit(ctx context.Context, runID string, t core.EventType, payload map[string]any) {
	event := core.NewEvent(t, runID, payload)
	if a.traces != nil {
		if err := a.traces.Append(runID, event); err != nil {
			a.logger.Warn("agent.trace.error",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}
	a.emitter.Emit(ctx, event)
}

// openSession registers the run's session and records the goal. Session
// store faults never abort a run.
func (a *Agent) openSession(ctx context.Context, run *core.Run) {
	if a.sessions == nil {
		return
	}
	if err := a.sessions.CreateSession(ctx, run.SessionID); err != nil {
		a.warnSession(run.SessionID, "create", err)
		return
	}
	err := a.sessions.AppendMessage(ctx, memory.Message{
		SessionID: run.SessionID,
		Role:      string(llm.RoleUser),
		Content:   "Goal: " + run.Goal,
	})
	if err != nil {
		a.warnSession(run.SessionID, "append", err)
	}
}

// logPlan mirrors the plan into the session history as a system message.
func (a *Agent) logPlan(ctx context.Context, st *runState) {
	if a.sessions == nil {
		return
	}
	nodes := st.graph.Nodes()
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for goal '%s':\n%s\n\n", st.run.Goal, st.graph.Rationale())
	for i, n := range nodes {
		fmt.Fprintf(&b, "Step %d: %s - %s\n", i+1, n.Capability, n.Rationale)
	}
	err := a.sessions.AppendMessage(ctx, memory.Message{
		SessionID: st.run.SessionID,
		Role:      string(llm.RoleSystem),
		Content:   b.String(),
		Metadata: map[string]string{
			"type":  "plan",
			"steps": strconv.Itoa(len(nodes)),
		},
	})
	if err != nil {
		a.warnSession(st.run.SessionID, "append", err)
	}
}

func (a *Agent) recordToolEvent(ctx context.Context, st *runState, node *planner.Node, outcome skills.StepOutcome) {
	if a.sessions == nil {
		return
	}
	event := memory.ToolEvent{
		SessionID:  st.run.SessionID,
		Capability: node.Capability,
		Input:      node.Args,
	}
	if outcome.Success {
		event.Output = outcome.Result
	} else {
		event.Error = outcome.Error
	}
	if err := a.sessions.AppendToolEvent(ctx, event); err != nil {
		a.warnSession(st.run.SessionID, "tool_event", err)
	}
}

func (a *Agent) recordReflection(ctx context.Context, st *runState, fb Feedback) {
	if a.sessions == nil {
		return
	}
	err := a.sessions.AppendReflection(ctx, memory.Reflection{
		SessionID:     st.run.SessionID,
		Step:          len(st.steps) + 1,
		Text:          fb.Rationale,
		Usefulness:    fb.Usefulness,
		MemoryUpdates: fb.MemoryUpdates,
	})
	if err != nil {
		a.warnSession(st.run.SessionID, "reflection", err)
	}
}

// closeSession records the terminal assistant message.
func (a *Agent) closeSession(ctx context.Context, st *runState, status core.RunStatus, answer string) {
	if a.sessions == nil {
		return
	}
	err := a.sessions.AppendMessage(ctx, memory.Message{
		SessionID: st.run.SessionID,
		Role:      string(llm.RoleAssistant),
		Content:   fmt.Sprintf("Task completed with status: %s. %s", status, answer),
		Metadata: map[string]string{
			"status": string(status),
			"steps":  strconv.Itoa(len(st.steps)),
		},
	})
	if err != nil {
		a.warnSession(st.run.SessionID, "append", err)
	}
}

func (a *Agent) warnSession(sessionID, op string, err error) {
	a.logger.Warn("agent.session.store_error",
		slog.String("session_id", sessionID),
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

// stepHistory renders prior steps for the reflection prompt.
func stepHistory(steps []StepRecord) string {
	lines := make([]string, 0, len(steps))
	for i, rec := range steps {
		lines = append(lines, fmt.Sprintf("Step %d: %s - %s", i+1, rec.Node.Capability, summarizeOutcome(rec.Outcome)))
	}
	return strings.Join(lines, "\n")
}

// reactHistory renders executed steps for follow-up suggestions.
func reactHistory(steps []StepRecord) string {
	lines := make([]string, 0, len(steps))
	for _, rec := range steps {
		tick := "✓"
		if !rec.Outcome.Success {
			tick = "✗"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", tick, rec.Node.Capability, truncate(rec.Feedback.Rationale, 100)))
	}
	return strings.Join(lines, "\n")
}

func summarizeOutcome(out skills.StepOutcome) string {
	if !out.Success {
		return "error: " + out.Error
	}
	return truncate(fmt.Sprint(out.Result), 200)
}

func actionWord(ok bool) string {
	if ok {
		return "succeeded"
	}
	return "failed"
}
