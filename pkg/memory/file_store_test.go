// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileVectorStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "vectors.jsonl")
	ctx := context.Background()

	store, err := NewFileVectorStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	points := []Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"text": "alpha"}},
		{ID: "b", Vector: []float32{0, 1}, Payload: map[string]any{"text": "beta"}},
	}
	if err := store.Upsert(ctx, "kb", points); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	reopened, err := NewFileVectorStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	results, err := reopened.Search(ctx, "kb", []float32{1, 0}, 10, 0.9)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("expected point a after reload, got %#v", results)
	}
	if results[0].Point.Payload["text"] != "alpha" {
		t.Fatalf("payload lost on reload: %#v", results[0].Point.Payload)
	}
}

func TestFileVectorStoreReplaySquashesDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.jsonl")
	ctx := context.Background()

	store, err := NewFileVectorStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Upsert(ctx, "kb", []Point{{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"rev": 1}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, "kb", []Point{{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"rev": 2}}}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	reopened, err := NewFileVectorStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	results, err := reopened.Search(ctx, "kb", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected replay to keep last write only, got %d points", len(results))
	}
}

func TestFileVectorStoreToleratesTornFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.jsonl")
	journal := `{"collection":"kb","point":{"id":"a","vector":[1,0],"payload":{"text":"alpha"}}}
{"collection":"kb","point":{"id":"b","vec`
	if err := os.WriteFile(path, []byte(journal), 0o600); err != nil {
		t.Fatalf("write journal: %v", err)
	}

	store, err := NewFileVectorStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	results, err := store.Search(context.Background(), "kb", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("expected the intact point only, got %#v", results)
	}
}
