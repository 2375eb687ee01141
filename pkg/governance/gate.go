// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jllopis/telos/pkg/errors"
)

// Mode selects how the gate settles ask decisions.
type Mode string

const (
	// ModeConsole creates a pending item and prompts an operator.
	ModeConsole Mode = "console"
	// ModeAuto creates the item and approves it immediately. Explicit
	// opt-in for unattended runs; the audit trail is still written.
	ModeAuto Mode = "auto"
	// ModeDeny creates the item and rejects it immediately.
	ModeDeny Mode = "deny"
	// ModeOff skips the ask path entirely. Deny rules still deny.
	ModeOff Mode = "off"
)

const (
	// DefaultApprovalTimeout bounds how long a pending item may block a run.
	DefaultApprovalTimeout = 120 * time.Second
	// DefaultPollInterval is how often Wait re-reads the store.
	DefaultPollInterval = 100 * time.Millisecond
)

// Resolver settles a pending approval out of band. Returning a status other
// than approved or rejected leaves the item pending for someone else (the
// admin API, the sweeper).
type Resolver interface {
	Resolve(ctx context.Context, item ApprovalItem) (ApprovalStatus, string)
}

// Gate evaluates policy rules against actions and blocks risky ones behind
// the approval store. One gate is shared by every run in the process.
type Gate struct {
	store    ApprovalStore
	rules    *RuleSet
	mode     Mode
	timeout  time.Duration
	poll     time.Duration
	resolver Resolver
	logger   *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMode sets the settlement mode. Unknown values fall back to console.
func WithMode(mode Mode) GateOption {
	return func(g *Gate) {
		switch mode {
		case ModeConsole, ModeAuto, ModeDeny, ModeOff:
			g.mode = mode
		}
	}
}

// WithTimeout bounds how long approvals stay pending before Wait gives up
// and the sweeper expires them.
func WithTimeout(timeout time.Duration) GateOption {
	return func(g *Gate) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithPollInterval sets the Wait polling interval.
func WithPollInterval(poll time.Duration) GateOption {
	return func(g *Gate) {
		if poll > 0 {
			g.poll = poll
		}
	}
}

// WithResolver sets the out-of-band resolver used in console mode.
func WithResolver(r Resolver) GateOption {
	return func(g *Gate) {
		if r != nil {
			g.resolver = r
		}
	}
}

// WithGateLogger sets the logger for settlement failures.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a gate over the given store and rules. A nil rule set
// allows everything.
func NewGate(store ApprovalStore, rules *RuleSet, opts ...GateOption) *Gate {
	if rules == nil {
		rules = NewRuleSet(nil)
	}
	g := &Gate{
		store:   store,
		rules:   rules,
		mode:    ModeConsole,
		timeout: DefaultApprovalTimeout,
		poll:    DefaultPollInterval,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check evaluates the action against the rules and, for ask outcomes,
// creates the approval item and settles it per the gate mode. The returned
// decision carries the item id so the caller can Wait on it.
func (g *Gate) Check(ctx context.Context, action Action) Decision {
	decision := g.rules.Evaluate(ctx, action)
	if decision.Status != DecisionAsk {
		return decision
	}
	if g.mode == ModeOff {
		decision.Status = DecisionAllow
		decision.Reason = "approvals disabled"
		return decision
	}

	reason := decision.Reason
	if reason == "" {
		reason = "approval required"
	}
	item := ApprovalItem{
		Action: action.Name,
		Reason: reason,
		RunID:  action.RunID,
		StepID: action.StepID,
	}
	if g.timeout > 0 {
		item.ExpiresAt = time.Now().UTC().Add(g.timeout)
	}
	created, err := g.store.Create(ctx, item)
	if err != nil {
		// Fail closed: a step the policy flagged never runs unrecorded.
		decision.Status = DecisionDeny
		decision.Reason = fmt.Sprintf("approval store unavailable: %v", err)
		return decision
	}
	decision.ItemID = created.ID

	switch g.mode {
	case ModeAuto:
		return g.settleNow(ctx, decision, created.ID, StatusApproved, "auto-approved")
	case ModeDeny:
		return g.settleNow(ctx, decision, created.ID, StatusRejected, "rejected by approval mode")
	default:
		if g.resolver != nil {
			go g.settle(ctx, *created)
		}
		return decision
	}
}

// Wait blocks until the item identified by the last ask decision settles.
func (g *Gate) Wait(ctx context.Context, id string) error {
	return Wait(ctx, g.store, id, g.timeout, g.poll)
}

func (g *Gate) settleNow(ctx context.Context, decision Decision, id string, status ApprovalStatus, reason string) Decision {
	if _, err := g.store.Resolve(ctx, id, status, reason); err != nil {
		decision.Status = DecisionDeny
		decision.Reason = fmt.Sprintf("approval store unavailable: %v", err)
		return decision
	}
	decision.Reason = reason
	if status == StatusApproved {
		decision.Status = DecisionAllow
	} else {
		decision.Status = DecisionDeny
	}
	return decision
}

func (g *Gate) settle(ctx context.Context, item ApprovalItem) {
	status, reason := g.resolver.Resolve(ctx, item)
	if status != StatusApproved && status != StatusRejected {
		return
	}
	if _, err := g.store.Resolve(ctx, item.ID, status, reason); err != nil {
		g.logger.Warn("telos.approval.resolve.error",
			slog.String("approval_id", item.ID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

// Wait polls the store until the item leaves pending. Approved resolves to
// nil; rejected resolves to APPROVAL_REJECTED; context cancellation or the
// timeout elapsing resolves to APPROVAL_TIMEOUT. Callers hold no locks here:
// the admin API or a console resolver settles the item concurrently.
func Wait(ctx context.Context, store ApprovalStore, id string, timeout, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	check := func() (error, bool) {
		item, err := store.Get(ctx, id)
		if err != nil {
			return err, true
		}
		switch item.Status {
		case StatusApproved:
			return nil, true
		case StatusRejected:
			return errors.NewApprovalRejected(id, item.Reason), true
		default:
			return nil, false
		}
	}

	if err, done := check(); done {
		return err
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errors.NewApprovalTimeout(id)
		case <-ticker.C:
			if err, done := check(); done {
				return err
			}
		}
	}
}
