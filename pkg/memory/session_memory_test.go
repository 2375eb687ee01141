// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"testing"
	"time"
)

func TestMemorySessionStore_HistoryTail(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, "run-1"); err != nil {
		t.Fatalf("create: %v", err)
	}

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, content := range []string{"first", "second", "third"} {
		msg := Message{
			SessionID: "run-1",
			Role:      "user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	tail, err := store.History(ctx, "run-1", 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(tail))
	}
	if tail[0].Content != "second" || tail[1].Content != "third" {
		t.Fatalf("expected chronological tail, got %q then %q", tail[0].Content, tail[1].Content)
	}
	if tail[0].ID == 0 {
		t.Fatalf("expected assigned message id")
	}
}

func TestMemorySessionStore_OutOfOrderTimestamps(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := Message{SessionID: "run-1", Role: "user", Content: "late", CreatedAt: base.Add(time.Minute)}
	early := Message{SessionID: "run-1", Role: "user", Content: "early", CreatedAt: base}
	if err := store.AppendMessage(ctx, late); err != nil {
		t.Fatalf("append late: %v", err)
	}
	if err := store.AppendMessage(ctx, early); err != nil {
		t.Fatalf("append early: %v", err)
	}

	all, err := store.History(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if all[0].Content != "early" || all[1].Content != "late" {
		t.Fatalf("history must sort by timestamp, got %q then %q", all[0].Content, all[1].Content)
	}
}

func TestMemorySessionStore_MetadataIsolation(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	metadata := map[string]string{"phase": "plan"}
	if err := store.AppendMessage(ctx, Message{SessionID: "run-1", Role: "system", Content: "plan", Metadata: metadata}); err != nil {
		t.Fatalf("append: %v", err)
	}
	metadata["phase"] = "mutated"

	got, err := store.History(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if got[0].Metadata["phase"] != "plan" {
		t.Fatalf("stored metadata must not alias the caller map: %#v", got[0].Metadata)
	}

	got[0].Metadata["phase"] = "reader-mutated"
	again, err := store.History(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if again[0].Metadata["phase"] != "plan" {
		t.Fatalf("returned metadata must not alias the store: %#v", again[0].Metadata)
	}
}

func TestMemorySessionStore_ToolEventsAndReflections(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	if err := store.AppendToolEvent(ctx, ToolEvent{
		SessionID:  "run-1",
		Capability: "web.fetch",
		Input:      map[string]any{"url": "https://example.com"},
		Output:     "page text",
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := store.AppendToolEvent(ctx, ToolEvent{
		SessionID:  "run-1",
		Capability: "fs.write",
		Input:      map[string]any{"path": "out.md"},
		Error:      "[NOT_FOUND] no such dir",
	}); err != nil {
		t.Fatalf("append failed event: %v", err)
	}

	events, err := store.ToolEvents(ctx, "run-1", 0)
	if err != nil {
		t.Fatalf("tool events: %v", err)
	}
	if len(events) != 2 || events[0].Capability != "web.fetch" {
		t.Fatalf("unexpected events: %#v", events)
	}
	if events[1].Error == "" {
		t.Fatalf("expected error preserved")
	}

	for _, r := range []Reflection{
		{SessionID: "run-1", Step: 2, Text: "better", Usefulness: 0.9},
		{SessionID: "run-1", Step: 1, Text: "weak", Usefulness: 0.2},
	} {
		if err := store.AppendReflection(ctx, r); err != nil {
			t.Fatalf("append reflection: %v", err)
		}
	}
	reflections, err := store.Reflections(ctx, "run-1")
	if err != nil {
		t.Fatalf("reflections: %v", err)
	}
	if reflections[0].Step != 1 || reflections[1].Step != 2 {
		t.Fatalf("expected step order, got %d then %d", reflections[0].Step, reflections[1].Step)
	}
}

func TestMemorySessionStore_SessionsIsolated(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	if err := store.AppendMessage(ctx, Message{SessionID: "a", Role: "user", Content: "for a"}); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := store.AppendMessage(ctx, Message{SessionID: "b", Role: "user", Content: "for b"}); err != nil {
		t.Fatalf("append b: %v", err)
	}
	got, err := store.History(ctx, "a", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 1 || got[0].Content != "for a" {
		t.Fatalf("session leak: %#v", got)
	}
}

func TestMemorySessionStore_Summarize(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	summary, err := store.Summarize(ctx, "empty")
	if err != nil {
		t.Fatalf("summarize empty: %v", err)
	}
	if summary != "No session data found." {
		t.Fatalf("unexpected empty summary: %q", summary)
	}

	if err := store.AppendMessage(ctx, Message{SessionID: "run-1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendReflection(ctx, Reflection{SessionID: "run-1", Step: 1, Usefulness: 0.8}); err != nil {
		t.Fatalf("append reflection: %v", err)
	}
	summary, err = store.Summarize(ctx, "run-1")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary == "" || summary == "No session data found." {
		t.Fatalf("unexpected summary: %q", summary)
	}
}
