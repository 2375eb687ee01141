// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package cost tallies resources consumed by a run. Counters are monotonic:
// the loop only ever adds, and a snapshot taken at any point reflects
// everything recorded so far.
package cost

import (
	"sync"

	"github.com/jllopis/telos/pkg/llm"
)

// Counter names recorded by the loop.
const (
	CounterSteps            = "steps"
	CounterPromptTokens     = "prompt_tokens"
	CounterCompletionTokens = "completion_tokens"
	CounterTokens           = "tokens"
)

// Ledger accumulates named counters for a single run. Safe for concurrent
// use.
type Ledger struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{counters: make(map[string]int64)}
}

// Add increments a counter. Negative deltas are ignored so counters stay
// monotonic.
func (l *Ledger) Add(name string, delta int64) {
	if delta <= 0 {
		return
	}
	l.mu.Lock()
	l.counters[name] += delta
	l.mu.Unlock()
}

// AddStep records one completed loop iteration.
func (l *Ledger) AddStep() {
	l.Add(CounterSteps, 1)
}

// AddUsage records token consumption reported by an LLM call.
func (l *Ledger) AddUsage(u llm.Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if u.PromptTokens > 0 {
		l.counters[CounterPromptTokens] += int64(u.PromptTokens)
	}
	if u.CompletionTokens > 0 {
		l.counters[CounterCompletionTokens] += int64(u.CompletionTokens)
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	if total > 0 {
		l.counters[CounterTokens] += int64(total)
	}
}

// Get returns the current value of a counter (zero if never recorded).
func (l *Ledger) Get(name string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[name]
}

// Snapshot returns a copy of all counters.
func (l *Ledger) Snapshot() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.counters))
	for k, v := range l.counters {
		out[k] = v
	}
	return out
}
