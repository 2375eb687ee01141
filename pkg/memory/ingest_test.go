// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"empty", "   \n", 10, 0, nil},
		{"fits in one", "short", 10, 0, []string{"short"}},
		{"no chunking when size zero", strings.Repeat("x", 40), 0, 0, []string{strings.Repeat("x", 40)}},
		{
			"windows with overlap",
			"aaaaabbbbbcccccddddd",
			10, 5,
			[]string{"aaaaabbbbb", "bbbbbccccc", "cccccddddd"},
		},
		{
			"overlap clamped when oversized",
			"aaaaabbbbb",
			5, 7,
			[]string{"aaaaa", "bbbbb"},
		},
		{
			"rune boundaries",
			"héllo wörld ünïcode",
			7, 0,
			[]string{"héllo w", "örld ün", "ïcode"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.text, tt.size, tt.overlap)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIngestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 25)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	lib := NewLibrary(NewMemoryVectorStore(), &stubEmbedder{}, "kb")
	ingestor := NewIngestor(lib, 10, 0)
	ctx := context.Background()

	n, err := ingestor.IngestFile(ctx, path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 chunks stored, got %d", n)
	}

	hits, err := lib.Search(ctx, "anything", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	for _, hit := range hits {
		if hit.Metadata["filename"] != "notes.txt" {
			t.Fatalf("metadata missing filename: %#v", hit.Metadata)
		}
		if !strings.HasPrefix(hit.ID, "notes#") {
			t.Fatalf("unexpected id: %q", hit.ID)
		}
	}
}

func TestIngestDirFiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"alpha.txt": "tides and moons",
		"beta.md":   "# Notes\nlunar gravity",
		"gamma.csv": "skip,me",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	lib := NewLibrary(NewMemoryVectorStore(), &stubEmbedder{}, "kb")
	ingestor := NewIngestor(lib, 0, 0)

	n, err := ingestor.IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 documents (.txt and .md only), got %d", n)
	}
}
