// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryApprovalStore keeps approvals in memory. Suited to single-process
// interactive runs; headless deployments use the SQLite store.
type MemoryApprovalStore struct {
	mu    sync.RWMutex
	items map[string]*ApprovalItem
}

// NewMemoryApprovalStore creates an empty in-memory approval store.
func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{items: make(map[string]*ApprovalItem)}
}

// Create inserts a new approval item.
func (s *MemoryApprovalStore) Create(_ context.Context, item ApprovalItem) (*ApprovalItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	copied := item
	s.mu.Lock()
	s.items[item.ID] = &copied
	s.mu.Unlock()

	out := copied
	return &out, nil
}

// Get returns an approval item by id.
func (s *MemoryApprovalStore) Get(_ context.Context, id string) (*ApprovalItem, error) {
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	out := *item
	return &out, nil
}

// List returns items matching the filter, most recently updated first.
func (s *MemoryApprovalStore) List(_ context.Context, filter Filter) ([]*ApprovalItem, error) {
	s.mu.RLock()
	out := make([]*ApprovalItem, 0, len(s.items))
	for _, item := range s.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.RunID != "" && item.RunID != filter.RunID {
			continue
		}
		if !filter.ExpiringBefore.IsZero() {
			if item.ExpiresAt.IsZero() || item.ExpiresAt.After(filter.ExpiringBefore) {
				continue
			}
		}
		copied := *item
		out = append(out, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Resolve transitions a pending item; settled items are left untouched.
func (s *MemoryApprovalStore) Resolve(_ context.Context, id string, status ApprovalStatus, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok || item.Status != StatusPending {
		return false, nil
	}
	item.Status = status
	item.Reason = reason
	item.UpdatedAt = time.Now().UTC()
	return true, nil
}

// ExpireApprovals rejects every pending item whose deadline has passed.
func (s *MemoryApprovalStore) ExpireApprovals(_ context.Context) (int, error) {
	now := time.Now().UTC()
	expired := 0
	s.mu.Lock()
	for _, item := range s.items {
		if item.Status != StatusPending || item.ExpiresAt.IsZero() || item.ExpiresAt.After(now) {
			continue
		}
		item.Status = StatusRejected
		item.Reason = "expired"
		item.UpdatedAt = now
		expired++
	}
	s.mu.Unlock()
	return expired, nil
}

// PendingCount returns the number of unresolved items.
func (s *MemoryApprovalStore) PendingCount(ctx context.Context) (int64, error) {
	items, err := s.List(ctx, Filter{Status: StatusPending})
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}
