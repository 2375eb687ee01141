// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one audited conversation message.
type Message struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	Role      string            `json:"role"` // system, user, assistant, tool
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tag       string            `json:"tag,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ToolEvent records one capability invocation.
type ToolEvent struct {
	ID         int64          `json:"id"`
	SessionID  string         `json:"session_id"`
	Capability string         `json:"capability"`
	Input      map[string]any `json:"input"`
	Output     any            `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Reflection records one per-step evaluation.
type Reflection struct {
	ID            int64             `json:"id"`
	SessionID     string            `json:"session_id"`
	Step          int               `json:"step"`
	Text          string            `json:"text"`
	Usefulness    float64           `json:"usefulness"`
	MemoryUpdates map[string]string `json:"memory_updates,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// SessionStore keeps the ordered audit history of a session. The scheduler
// treats it as a sink: a write failure is logged and the run proceeds.
type SessionStore interface {
	// CreateSession registers a session id. Creating an existing session
	// refreshes it rather than failing.
	CreateSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, msg Message) error
	AppendToolEvent(ctx context.Context, event ToolEvent) error
	AppendReflection(ctx context.Context, r Reflection) error

	// History returns the last limit messages in chronological order.
	// limit <= 0 returns the full history.
	History(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// ToolEvents returns the last limit tool events in chronological order.
	ToolEvents(ctx context.Context, sessionID string, limit int) ([]ToolEvent, error)

	// Reflections returns all reflections ordered by step.
	Reflections(ctx context.Context, sessionID string) ([]Reflection, error)
}

// sessionDigest builds the one-line session summary shown by the CLI.
func sessionDigest(messages []Message, reflections []Reflection) string {
	var parts []string
	if len(messages) > 0 {
		users, assistants := 0, 0
		for _, m := range messages {
			switch m.Role {
			case "user":
				users++
			case "assistant":
				assistants++
			}
		}
		parts = append(parts, fmt.Sprintf("Session had %d messages.", len(messages)))
		parts = append(parts, fmt.Sprintf("User: %d, Assistant: %d", users, assistants))
	}
	if len(reflections) > 0 {
		total := 0.0
		for _, r := range reflections {
			total += r.Usefulness
		}
		parts = append(parts, fmt.Sprintf("Average reflection usefulness: %.2f", total/float64(len(reflections))))
	}
	if len(parts) == 0 {
		return "No session data found."
	}
	return strings.Join(parts, "; ")
}
