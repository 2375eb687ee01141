// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
)

// stubEmbedder returns canned vectors so ranking is deterministic. Texts
// without a canned vector share a default axis.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, stderrors.New("embedder down")
}

func TestLibraryInitializeCreatesCollection(t *testing.T) {
	store := NewMemoryVectorStore()
	lib := NewLibrary(store, &stubEmbedder{}, "kb")
	ctx := context.Background()

	if err := lib.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := store.CreateCollection(ctx, "kb", 3); err == nil {
		t.Fatalf("expected collection to exist after initialize")
	}
}

func TestLibraryInitializeTolerantWhenSearchable(t *testing.T) {
	store := NewMemoryVectorStore()
	ctx := context.Background()
	if err := store.CreateCollection(ctx, "kb", 3); err != nil {
		t.Fatalf("create: %v", err)
	}

	lib := NewLibrary(store, &stubEmbedder{}, "kb")
	if err := lib.Initialize(ctx); err != nil {
		t.Fatalf("initialize over existing collection: %v", err)
	}
}

func TestLibraryInitializeEmbedderFailure(t *testing.T) {
	lib := NewLibrary(NewMemoryVectorStore(), failingEmbedder{}, "kb")
	err := lib.Initialize(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.IsCode(err, errors.CodeCollaboratorUnavailable) {
		t.Fatalf("unexpected code: %v", err)
	}
}

func TestLibraryAddDocuments(t *testing.T) {
	lib := NewLibrary(NewMemoryVectorStore(), &stubEmbedder{}, "kb")
	ctx := context.Background()

	ids, err := lib.AddDocuments(ctx, []Document{
		{Text: "   "},
		{Text: "tides are caused by the moon"},
		{ID: "doc-7", Text: "the moon has no atmosphere"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected blank document skipped, got %d ids", len(ids))
	}
	if ids[0] == "" {
		t.Fatalf("expected generated id")
	}
	if ids[1] != "doc-7" {
		t.Fatalf("expected caller id kept, got %q", ids[1])
	}
}

func TestLibraryAddDocumentsNothingToStore(t *testing.T) {
	lib := NewLibrary(NewMemoryVectorStore(), &stubEmbedder{}, "kb")
	ids, err := lib.AddDocuments(context.Background(), []Document{{Text: ""}, {Text: "\n\t"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if ids != nil {
		t.Fatalf("expected no ids, got %v", ids)
	}
}

func TestLibrarySearchMapsHits(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"tides are caused by the moon": {0, 1, 0},
		"what causes tides?":           {0, 1, 0},
	}}
	lib := NewLibrary(NewMemoryVectorStore(), embedder, "kb", WithScoreThreshold(0.5))
	ctx := context.Background()

	_, err := lib.AddDocuments(ctx, []Document{
		{ID: "tides", Text: "tides are caused by the moon", Metadata: map[string]any{"source": "astronomy.md"}},
		{ID: "other", Text: "unrelated gardening advice"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := lib.Search(ctx, "what causes tides?", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit above threshold, got %d", len(hits))
	}
	if hits[0].ID != "tides" {
		t.Fatalf("unexpected hit: %#v", hits[0])
	}
	if hits[0].Text != "tides are caused by the moon" {
		t.Fatalf("text not mapped: %q", hits[0].Text)
	}
	if hits[0].Metadata["source"] != "astronomy.md" {
		t.Fatalf("metadata not mapped: %#v", hits[0].Metadata)
	}
	if hits[0].Score < 0.999 {
		t.Fatalf("expected near-perfect score, got %f", hits[0].Score)
	}
}

func TestLibrarySearchDefaultTopK(t *testing.T) {
	lib := NewLibrary(NewMemoryVectorStore(), &stubEmbedder{}, "kb")
	ctx := context.Background()

	docs := make([]Document, 0, DefaultTopK+2)
	for i := 0; i < DefaultTopK+2; i++ {
		docs = append(docs, Document{Text: "note " + string(rune('a'+i))})
	}
	if _, err := lib.AddDocuments(ctx, docs); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := lib.Search(ctx, "anything", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != DefaultTopK {
		t.Fatalf("expected default top-k %d, got %d", DefaultTopK, len(hits))
	}
}

func TestLibrarySearchEmbedderFailure(t *testing.T) {
	lib := NewLibrary(NewMemoryVectorStore(), failingEmbedder{}, "kb")
	_, err := lib.Search(context.Background(), "query", 3)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.IsCode(err, errors.CodeCollaboratorUnavailable) {
		t.Fatalf("unexpected code: %v", err)
	}
}
