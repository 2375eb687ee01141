// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/governance"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/planner"
	"github.com/jllopis/telos/pkg/skills"
	"github.com/jllopis/telos/pkg/trace"
)

// collector gathers emitted events for assertions.
type collector struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *collector) Emit(_ context.Context, e core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) types() []core.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func (c *collector) find(t core.EventType) (core.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type == t {
			return e, true
		}
	}
	return core.Event{}, false
}

// graphBuilder hands out a fixed graph, or a fixed error.
type graphBuilder struct {
	graph *planner.Graph
	err   error
}

func (b *graphBuilder) BuildGraph(_ context.Context, _ string) (*planner.Graph, error) {
	return b.graph, b.err
}

// suggester replays scripted follow-up actions once the plan completes.
// An empty script means the goal is achieved.
type suggester struct {
	graphBuilder
	mu      sync.Mutex
	actions []*planner.NextAction
	err     error
}

func (s *suggester) SuggestNext(_ context.Context, _, _, _ string) (*planner.NextAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.actions) == 0 {
		return nil, nil
	}
	action := s.actions[0]
	s.actions = s.actions[1:]
	return action, nil
}

func repeatedActions(capability string, n int) []*planner.NextAction {
	actions := make([]*planner.NextAction, 0, n)
	for i := 0; i < n; i++ {
		actions = append(actions, &planner.NextAction{
			Capability: capability,
			Args:       map[string]any{"text": "again"},
			Rationale:  "one more pass",
		})
	}
	return actions
}

func echoRegistry(t *testing.T, executed *atomic.Int64) *skills.Registry {
	t.Helper()
	r := skills.NewRegistry()
	err := r.Register(skills.NewFunc("echo", "repeats its input", nil,
		func(_ context.Context, args map[string]any) (any, error) {
			if executed != nil {
				executed.Add(1)
			}
			return args["text"], nil
		}))
	if err != nil {
		t.Fatalf("Register echo: %v", err)
	}
	err = r.Register(skills.NewFunc("flaky.op", "always fails", nil,
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, fmt.Errorf("boom")
		}))
	if err != nil {
		t.Fatalf("Register flaky.op: %v", err)
	}
	return r
}

func chainPlan(t *testing.T, caps ...string) *planner.Graph {
	t.Helper()
	steps := make([]planner.Step, 0, len(caps))
	for _, c := range caps {
		steps = append(steps, planner.Step{
			Capability: c,
			Args:       map[string]any{"text": "hi"},
			Rationale:  "run " + c,
		})
	}
	g, err := planner.FromFlatPlan(&planner.FlatPlan{Rationale: "scripted plan", Steps: steps})
	if err != nil {
		t.Fatalf("FromFlatPlan: %v", err)
	}
	return g
}

func testAgent(t *testing.T, opts ...Option) *Agent {
	t.Helper()
	base := []Option{
		WithPacer(NopPacer{}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	a, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestRunSuccessEventOrder(t *testing.T) {
	events := &collector{}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(chainPlan(t, "echo")),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.9, GoalAchieved: true, Rationale: "done"}}),
		WithEmitter(events),
	)

	result, err := a.Run(context.Background(), "echo something")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusSuccess {
		t.Fatalf("status = %q, want success", result.Status)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
	if result.Answer != "Task completed successfully" {
		t.Fatalf("answer = %q", result.Answer)
	}
	if result.Cost["steps"] != 1 {
		t.Fatalf("cost steps = %d, want 1", result.Cost["steps"])
	}

	want := []core.EventType{
		core.EventRunStart,
		core.EventPlanStart,
		core.EventToolCall,
		core.EventReflection,
		core.EventRunDone,
	}
	got := events.types()
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	done, _ := events.find(core.EventRunDone)
	if done.Payload["status"] != "success" {
		t.Fatalf("done payload = %+v", done.Payload)
	}
	if done.RunID != result.RunID {
		t.Fatalf("event run id = %q, want %q", done.RunID, result.RunID)
	}
}

func TestRunGoalAchievedOverridesContinue(t *testing.T) {
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(chainPlan(t, "echo", "echo")),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.9, Continue: true, GoalAchieved: true}}),
	)
	// Second node can never run: the verdict claims the goal after step one.
	result, err := a.Run(context.Background(), "stop early")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
	if result.Status != core.RunStatusSuccess {
		t.Fatalf("status = %q, want success", result.Status)
	}
}

func TestRunStoppedAtMaxSteps(t *testing.T) {
	b := &suggester{
		graphBuilder: graphBuilder{graph: chainPlan(t, "echo")},
		actions:      repeatedActions("echo", 10),
	}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithBuilder(b),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.9, Continue: true}}),
		WithMaxSteps(3),
	)

	result, err := a.Run(context.Background(), "keep going")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusStopped {
		t.Fatalf("status = %q, want stopped", result.Status)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(result.Steps))
	}
	if result.Answer != "Task stopped after 3 steps" {
		t.Fatalf("answer = %q", result.Answer)
	}
	if ids := []string{result.Steps[0].Node.ID, result.Steps[1].Node.ID, result.Steps[2].Node.ID}; ids[0] != "s1" || ids[1] != "r2" || ids[2] != "r3" {
		t.Fatalf("node ids = %v, want [s1 r2 r3]", ids)
	}
}

func TestRunNonPositiveMaxStepsFails(t *testing.T) {
	var executed atomic.Int64
	a := testAgent(t,
		WithRegistry(echoRegistry(t, &executed)),
		WithGraph(chainPlan(t, "echo")),
		WithMaxSteps(0),
	)

	result, err := a.Run(context.Background(), "never starts")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure", result.Status)
	}
	if len(result.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(result.Steps))
	}
	if executed.Load() != 0 {
		t.Fatalf("capability executed %d times with max steps 0", executed.Load())
	}
}

func TestRunEmptyPlanFails(t *testing.T) {
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(planner.NewGraph()),
	)
	result, err := a.Run(context.Background(), "nothing to do")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure", result.Status)
	}
	if result.Answer != "Task failed to achieve goal" {
		t.Fatalf("answer = %q", result.Answer)
	}
}

func TestRunLowUsefulnessFails(t *testing.T) {
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(chainPlan(t, "echo")),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.2}}),
	)
	result, err := a.Run(context.Background(), "weak progress")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure", result.Status)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
}

func TestRunThresholdIsExclusive(t *testing.T) {
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(chainPlan(t, "echo")),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.8}}),
	)
	// Usefulness equal to the threshold is not enough.
	result, err := a.Run(context.Background(), "borderline")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure at threshold", result.Status)
	}
}

func TestRunGovernanceDenySkipsExecution(t *testing.T) {
	var executed atomic.Int64
	rules := governance.NewRuleSet([]governance.Rule{{
		ID:      "no-echo",
		Effect:  governance.DecisionDeny,
		Type:    governance.ActionCapability,
		Pattern: "echo",
		Reason:  "blocked by policy",
	}})
	gate := governance.NewGate(governance.NewMemoryApprovalStore(), rules)

	a := testAgent(t,
		WithRegistry(echoRegistry(t, &executed)),
		WithGraph(chainPlan(t, "echo")),
		WithGate(gate),
	)
	result, err := a.Run(context.Background(), "denied goal")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if executed.Load() != 0 {
		t.Fatalf("denied capability executed %d times", executed.Load())
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure", result.Status)
	}
	out := result.Steps[0].Outcome
	if out.Success {
		t.Fatal("denied step reported success")
	}
	if out.Error != "policy denied: blocked by policy" {
		t.Fatalf("outcome error = %q", out.Error)
	}
}

type scriptedResolver struct {
	status governance.ApprovalStatus
	reason string
}

func (r scriptedResolver) Resolve(_ context.Context, _ governance.ApprovalItem) (governance.ApprovalStatus, string) {
	return r.status, r.reason
}

func approvalGate(status governance.ApprovalStatus, reason string) *governance.Gate {
	return governance.NewGate(
		governance.NewMemoryApprovalStore(),
		governance.RulesFromConfig([]string{"echo"}),
		governance.WithResolver(scriptedResolver{status: status, reason: reason}),
		governance.WithPollInterval(time.Millisecond),
		governance.WithTimeout(5*time.Second),
	)
}

func TestRunApprovalRejectedSkipsExecution(t *testing.T) {
	var executed atomic.Int64
	events := &collector{}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, &executed)),
		WithGraph(chainPlan(t, "echo")),
		WithGate(approvalGate(governance.StatusRejected, "operator said no")),
		WithEmitter(events),
	)

	result, err := a.Run(context.Background(), "risky goal")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if executed.Load() != 0 {
		t.Fatalf("rejected capability executed %d times", executed.Load())
	}
	out := result.Steps[0].Outcome
	if out.Success || !strings.Contains(out.Error, "rejected") {
		t.Fatalf("outcome = %+v, want rejected error", out)
	}
	if _, ok := events.find(core.EventApprovalRequested); !ok {
		t.Fatal("no approval_requested event")
	}
	resolved, ok := events.find(core.EventApprovalResolved)
	if !ok {
		t.Fatal("no approval_resolved event")
	}
	if resolved.Payload["approved"] != false {
		t.Fatalf("resolved payload = %+v, want approved false", resolved.Payload)
	}
}

func TestRunApprovalApprovedExecutes(t *testing.T) {
	var executed atomic.Int64
	events := &collector{}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, &executed)),
		WithGraph(chainPlan(t, "echo")),
		WithGate(approvalGate(governance.StatusApproved, "looks fine")),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.9, GoalAchieved: true}}),
		WithEmitter(events),
	)

	result, err := a.Run(context.Background(), "risky but fine")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if executed.Load() != 1 {
		t.Fatalf("capability executed %d times, want 1", executed.Load())
	}
	if result.Status != core.RunStatusSuccess {
		t.Fatalf("status = %q, want success", result.Status)
	}
	resolved, ok := events.find(core.EventApprovalResolved)
	if !ok {
		t.Fatal("no approval_resolved event")
	}
	if resolved.Payload["approved"] != true {
		t.Fatalf("resolved payload = %+v, want approved true", resolved.Payload)
	}
}

func TestRunFailedStepStallsPlan(t *testing.T) {
	var executed atomic.Int64
	g := chainPlan(t, "flaky.op", "echo")
	a := testAgent(t,
		WithRegistry(echoRegistry(t, &executed)),
		WithGraph(g),
		WithFailFast(true),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.5, Continue: true}}),
	)

	result, err := a.Run(context.Background(), "doomed chain")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
	if executed.Load() != 0 {
		t.Fatalf("dependent step executed after failure")
	}
	counts := g.Counts()
	if counts[planner.StatusFailed] != 1 || counts[planner.StatusSkipped] != 1 {
		t.Fatalf("graph counts = %v, want 1 failed 1 skipped", counts)
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure", result.Status)
	}
}

func TestRunPlanExhausted(t *testing.T) {
	// A cyclic graph never yields a ready node and never terminates.
	// Validate would reject it; a pre-built graph skips validation.
	g := planner.NewGraph()
	if _, err := g.AddNode(planner.Node{ID: "a", Capability: "echo"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if _, err := g.AddNode(planner.Node{ID: "b", Capability: "echo"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.AddEdge("b", "a"); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	events := &collector{}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(g),
		WithEmitter(events),
	)
	result, err := a.Run(context.Background(), "impossible plan")
	if !errors.IsCode(err, errors.CodePlanExhausted) {
		t.Fatalf("Run err = %v, want PLAN_EXHAUSTED", err)
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure", result.Status)
	}
	errEvent, ok := events.find(core.EventRunError)
	if !ok {
		t.Fatal("no error event")
	}
	if errEvent.Payload["stage"] != "pick" {
		t.Fatalf("error payload = %+v, want stage pick", errEvent.Payload)
	}
}

func TestRunBuilderErrorFailsRun(t *testing.T) {
	events := &collector{}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithBuilder(&graphBuilder{err: fmt.Errorf("no model")}),
		WithEmitter(events),
	)
	result, err := a.Run(context.Background(), "unplannable")
	if err == nil {
		t.Fatal("Run returned nil error for failed plan")
	}
	if result.Status != core.RunStatusFailure {
		t.Fatalf("status = %q, want failure", result.Status)
	}
	errEvent, ok := events.find(core.EventRunError)
	if !ok {
		t.Fatal("no error event")
	}
	if errEvent.Payload["stage"] != "plan" {
		t.Fatalf("error payload = %+v, want stage plan", errEvent.Payload)
	}
}

func TestRunSuggestionFailureEndsLoopQuietly(t *testing.T) {
	b := &suggester{
		graphBuilder: graphBuilder{graph: chainPlan(t, "echo")},
		err:          fmt.Errorf("model offline"),
	}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithBuilder(b),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.9, Continue: true}}),
	)
	result, err := a.Run(context.Background(), "graceful end")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusSuccess {
		t.Fatalf("status = %q, want success despite suggestion failure", result.Status)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(result.Steps))
	}
}

func TestRunCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(chainPlan(t, "echo")),
	)
	result, err := a.Run(ctx, "cancelled before start")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != core.RunStatusStopped {
		t.Fatalf("status = %q, want stopped", result.Status)
	}
	if len(result.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(result.Steps))
	}
	if result.Answer != "Task stopped after 0 steps" {
		t.Fatalf("answer = %q", result.Answer)
	}
}

func TestRunSessionTranscript(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemorySessionStore()
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(chainPlan(t, "echo")),
		WithSessions(store),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.9, GoalAchieved: true, Rationale: "echoed the text"}}),
	)

	result, err := a.Run(ctx, "echo a greeting")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	history, err := store.History(ctx, result.RunID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d messages, want 3", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "Goal: echo a greeting" {
		t.Fatalf("goal message = %+v", history[0])
	}
	if history[1].Role != "system" || history[1].Metadata["type"] != "plan" {
		t.Fatalf("plan message = %+v", history[1])
	}
	if !strings.Contains(history[1].Content, "Step 1: echo") {
		t.Fatalf("plan content = %q", history[1].Content)
	}
	if history[2].Role != "assistant" || !strings.Contains(history[2].Content, "Task completed with status: success") {
		t.Fatalf("final message = %+v", history[2])
	}
	if history[2].Metadata["steps"] != "1" {
		t.Fatalf("final metadata = %v", history[2].Metadata)
	}

	toolEvents, err := store.ToolEvents(ctx, result.RunID, 0)
	if err != nil {
		t.Fatalf("ToolEvents: %v", err)
	}
	if len(toolEvents) != 1 || toolEvents[0].Capability != "echo" {
		t.Fatalf("tool events = %+v", toolEvents)
	}
	reflections, err := store.Reflections(ctx, result.RunID)
	if err != nil {
		t.Fatalf("Reflections: %v", err)
	}
	if len(reflections) != 1 || reflections[0].Step != 1 || reflections[0].Text != "echoed the text" {
		t.Fatalf("reflections = %+v", reflections)
	}
}

func TestRunWritesTrace(t *testing.T) {
	dir := t.TempDir()
	w, err := trace.NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	a := testAgent(t,
		WithRegistry(echoRegistry(t, nil)),
		WithGraph(chainPlan(t, "echo")),
		WithTraceWriter(w),
		WithFeedback(StaticEvaluator{Feedback: Feedback{Usefulness: 0.9, GoalAchieved: true}}),
	)

	result, err := a.Run(context.Background(), "traced run")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	recorded, err := trace.NewReader(dir).ReadAll(result.RunID)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recorded) != 5 {
		t.Fatalf("trace events = %d, want 5", len(recorded))
	}
	if recorded[0].Type != core.EventRunStart {
		t.Fatalf("first event = %q, want run_start", recorded[0].Type)
	}
	if recorded[len(recorded)-1].Type != core.EventRunDone {
		t.Fatalf("last event = %q, want done", recorded[len(recorded)-1].Type)
	}
}
