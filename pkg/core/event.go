package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the agent loop.
// The same names appear as record types in the persisted run trace.
type EventType string

const (
	EventRunStart          EventType = "run_start"
	EventPlanStart         EventType = "plan_start"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalResolved  EventType = "approval_resolved"
	EventToolCall          EventType = "tool_call"
	EventReflection        EventType = "reflection"
	EventRunDone           EventType = "done"
	EventRunError          EventType = "error"
)

// Event captures a semantic streaming/logging event scoped to a run.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"ts"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, runID string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
