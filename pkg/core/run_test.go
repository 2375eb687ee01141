package core

import (
	"context"
	"regexp"
	"testing"
)

func TestRunLifecycle(t *testing.T) {
	run := NewRun("summarize the report", "session-1")
	if run.Status != RunPlanning {
		t.Fatalf("expected planning status, got %s", run.Status)
	}
	if run.ID == "" {
		t.Fatalf("expected run id to be assigned")
	}
	run.Iterate()
	if run.Status != RunIterating {
		t.Fatalf("expected iterating status, got %s", run.Status)
	}
	run.Finish(RunSuccess, "")
	if run.Status != RunSuccess {
		t.Fatalf("expected success status, got %s", run.Status)
	}
	if run.FinishedAt.IsZero() {
		t.Fatalf("expected finish timestamp to be stamped")
	}
}

func TestRunFinishIgnoresNonTerminal(t *testing.T) {
	run := NewRun("goal", "")
	run.Iterate()
	run.Finish(RunIterating, "")
	if run.Status != RunIterating {
		t.Fatalf("non-terminal finish must be ignored, got %s", run.Status)
	}
	run.Finish(RunFailure, "boom")
	if run.Status != RunFailure {
		t.Fatalf("expected failure status, got %s", run.Status)
	}
	if run.Error != "boom" {
		t.Fatalf("expected error to be recorded")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to RunStatus
		want     bool
	}{
		{RunPlanning, RunIterating, true},
		{RunPlanning, RunFailure, true},
		{RunPlanning, RunSuccess, false},
		{RunIterating, RunSuccess, true},
		{RunIterating, RunStopped, true},
		{RunIterating, RunFailure, true},
		{RunIterating, RunPlanning, false},
		{RunSuccess, RunFailure, false},
		{RunStopped, RunIterating, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunSuccess, RunFailure, RunStopped} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunPlanning, RunIterating} {
		if IsTerminal(s) {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestNewRunIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^run_\d+_[0-9a-f]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 16; i++ {
		id := NewRunID()
		if !pattern.MatchString(id) {
			t.Fatalf("run id %q does not match run_<unix>_<hex8>", id)
		}
		if seen[id] {
			t.Fatalf("run id %q generated twice", id)
		}
		seen[id] = true
	}
}

func TestRunIDContext(t *testing.T) {
	ctx := context.Background()
	if id, ok := RunIDFromContext(ctx); ok || id != "" {
		t.Fatalf("expected empty run id on bare context")
	}
	ctx = WithRunID(ctx, "run_1_deadbeef")
	id, ok := RunIDFromContext(ctx)
	if !ok || id != "run_1_deadbeef" {
		t.Fatalf("expected stored run id, got %q", id)
	}
}

func TestEnsureRunID(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("expected generated run id")
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id {
		t.Fatalf("expected existing run id to be kept, got %q and %q", id, id2)
	}
	if ctx2 != ctx {
		t.Fatalf("expected context to be reused when id already present")
	}
}
