// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySessionStore keeps session history in process memory. It backs
// tests and ephemeral runs where nothing should land on disk.
type MemorySessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]time.Time
	messages    map[string][]Message
	toolEvents  map[string][]ToolEvent
	reflections map[string][]Reflection
	nextID      int64
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:    make(map[string]time.Time),
		messages:    make(map[string][]Message),
		toolEvents:  make(map[string][]ToolEvent),
		reflections: make(map[string][]Reflection),
	}
}

// CreateSession registers the session, refreshing it when it exists.
func (s *MemorySessionStore) CreateSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = time.Now().UTC()
	return nil
}

// AppendMessage stores one message.
func (s *MemorySessionStore) AppendMessage(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = s.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Metadata = cloneStringMap(msg.Metadata)
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

// AppendToolEvent stores one capability invocation.
func (s *MemorySessionStore) AppendToolEvent(_ context.Context, event ToolEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Input = cloneAnyMap(event.Input)
	s.toolEvents[event.SessionID] = append(s.toolEvents[event.SessionID], event)
	return nil
}

// AppendReflection stores one per-step evaluation.
func (s *MemorySessionStore) AppendReflection(_ context.Context, r Reflection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.MemoryUpdates = cloneStringMap(r.MemoryUpdates)
	s.reflections[r.SessionID] = append(s.reflections[r.SessionID], r)
	return nil
}

// History returns the last limit messages in chronological order.
func (s *MemorySessionStore) History(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	for i := range out {
		out[i].Metadata = cloneStringMap(out[i].Metadata)
	}
	return out, nil
}

// ToolEvents returns the last limit tool events in chronological order.
func (s *MemorySessionStore) ToolEvents(_ context.Context, sessionID string, limit int) ([]ToolEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ToolEvent, len(s.toolEvents[sessionID]))
	copy(out, s.toolEvents[sessionID])
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	for i := range out {
		out[i].Input = cloneAnyMap(out[i].Input)
	}
	return out, nil
}

// Reflections returns all reflections ordered by step.
func (s *MemorySessionStore) Reflections(_ context.Context, sessionID string) ([]Reflection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reflection, len(s.reflections[sessionID]))
	copy(out, s.reflections[sessionID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	for i := range out {
		out[i].MemoryUpdates = cloneStringMap(out[i].MemoryUpdates)
	}
	return out, nil
}

// Summarize returns a one-line digest of a session for the CLI.
func (s *MemorySessionStore) Summarize(ctx context.Context, sessionID string) (string, error) {
	messages, err := s.History(ctx, sessionID, 0)
	if err != nil {
		return "", err
	}
	reflections, err := s.Reflections(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return sessionDigest(messages, reflections), nil
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
