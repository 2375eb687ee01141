// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package governance gates risky capability executions behind policy rules
// and human approval. A gated step creates an approval item; the scheduler
// blocks on it (cancellable, bounded by a timeout) while an operator — or an
// automatic resolver — settles it through the shared store. Items are never
// deleted: resolved approvals stay behind as the audit trail.
package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/jllopis/telos/pkg/errors"
)

// ApprovalStatus captures the lifecycle of a human approval.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// ApprovalItem is one pending-or-settled approval request.
type ApprovalItem struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Reason    string         `json:"reason,omitempty"`
	Status    ApprovalStatus `json:"status"`
	RunID     string         `json:"run_id,omitempty"`
	StepID    string         `json:"step_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at,omitempty"`
}

// Pending reports whether the item still awaits a decision.
func (a *ApprovalItem) Pending() bool {
	return a.Status == StatusPending
}

// Filter limits approval queries.
type Filter struct {
	Status         ApprovalStatus
	RunID          string
	Limit          int
	ExpiringBefore time.Time
}

// ApprovalStore persists approval items. The scheduler and the admin API
// share one store instance by reference; both resolve through it.
type ApprovalStore interface {
	// Create inserts the item with a fresh id and pending status.
	Create(ctx context.Context, item ApprovalItem) (*ApprovalItem, error)

	// Get returns the item or a NOT_FOUND error.
	Get(ctx context.Context, id string) (*ApprovalItem, error)

	// List returns items matching the filter, most recently updated first.
	List(ctx context.Context, filter Filter) ([]*ApprovalItem, error)

	// Resolve transitions a pending item to status. It returns false with a
	// nil error when the id is unknown or the item is already settled:
	// resolution races are expected, not exceptional.
	Resolve(ctx context.Context, id string, status ApprovalStatus, reason string) (bool, error)
}

func notFound(id string) error {
	return errors.New(errors.CodeNotFound, fmt.Sprintf("approval %q not found", id), nil).
		WithContext("approval_id", id)
}
