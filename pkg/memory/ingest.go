// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Chunk splits text into rune windows of at most size runes, overlapping by
// overlap runes so sentences cut at a boundary still appear whole in one
// chunk. size <= 0 returns the text as a single chunk.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Ingestor feeds local files into a Library, one document per chunk.
type Ingestor struct {
	library   *Library
	chunkSize int
	overlap   int
}

// NewIngestor builds an Ingestor. chunkSize <= 0 disables chunking.
func NewIngestor(library *Library, chunkSize, overlap int) *Ingestor {
	return &Ingestor{library: library, chunkSize: chunkSize, overlap: overlap}
}

// IngestFile chunks one file and stores the chunks. Returns the number of
// stored documents.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	chunks := Chunk(string(data), in.chunkSize, in.overlap)

	docs := make([]Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, Document{
			ID:   fmt.Sprintf("%s#%d", stem, i),
			Text: chunk,
			Metadata: map[string]any{
				"source":   path,
				"filename": base,
				"chunk":    i,
			},
		})
	}
	ids, err := in.library.AddDocuments(ctx, docs)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// IngestDir ingests every .txt and .md file directly inside dir. Returns
// the number of stored documents.
func (in *Ingestor) IngestDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".txt", ".md":
		default:
			continue
		}
		n, err := in.IngestFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
